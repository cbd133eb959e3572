package capture

import (
	"encoding/json"
	"strings"

	"github.com/ciddy0/co2ounter/internal/emission"
)

// Claude's completion endpoint streams typed SSE events: message_start names
// the model, content_block_delta carries text deltas, and message_stop marks
// the end of the assistant turn.
type claudeAdapter struct{}

func (claudeAdapter) Site() string { return SiteClaude }

func (claudeAdapter) MatchesRequest(url string) bool {
	return strings.Contains(url, "claude.ai/api/organizations") &&
		strings.Contains(url, "/completion")
}

func (a claudeAdapter) PromptFromRequest(url string, body []byte) (*PromptSent, bool) {
	var req struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Prompt == "" {
		return nil, false
	}

	model := req.Model
	if model == "" {
		model = SiteClaude
	}
	return &PromptSent{
		Site:        SiteClaude,
		Model:       model,
		InputTokens: EstimateTokens(req.Prompt),
	}, true
}

func (claudeAdapter) NewStream() StreamAccumulator {
	return &claudeStream{model: SiteClaude}
}

type claudeStream struct {
	text  strings.Builder
	model string
}

type claudeEvent struct {
	Type    string `json:"type"`
	Message struct {
		Model string `json:"model"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (s *claudeStream) ConsumeFragment(line []byte) []Event {
	data, ok := sseData(line)
	if !ok {
		return nil
	}

	var ev claudeEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case "message_start":
		if ev.Message.Model != "" {
			s.model = ev.Message.Model
		}
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			s.text.WriteString(ev.Delta.Text)
		}
	case "message_stop":
		if s.text.Len() == 0 {
			return nil
		}
		tokens := EstimateTokens(s.text.String())
		grams, _ := emission.EstimateGrams(s.model, tokens)
		out := ResponseReceived{
			Site:         SiteClaude,
			Model:        s.model,
			OutputTokens: tokens,
			CO2Grams:     grams,
		}
		// Reset so a follow-up turn on the same stream starts clean.
		s.text.Reset()
		return []Event{out}
	}

	return nil
}
