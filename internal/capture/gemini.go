package capture

import (
	"encoding/json"
	"strings"

	"github.com/ciddy0/co2ounter/internal/emission"
)

// Gemini streams newline-delimited JSON chunks with candidate content parts;
// the terminal chunk carries a finishReason instead of an explicit sentinel
// record.
type geminiAdapter struct{}

func (geminiAdapter) Site() string { return SiteGemini }

func (geminiAdapter) MatchesRequest(url string) bool {
	return strings.Contains(url, "gemini.google.com") &&
		strings.Contains(url, "StreamGenerate")
}

func (a geminiAdapter) PromptFromRequest(url string, body []byte) (*PromptSent, bool) {
	var req struct {
		Prompt   string `json:"prompt"`
		Model    string `json:"model"`
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false
	}

	text := req.Prompt
	if text == "" {
		for _, c := range req.Contents {
			if c.Role != "user" {
				continue
			}
			parts := make([]string, 0, len(c.Parts))
			for _, p := range c.Parts {
				parts = append(parts, p.Text)
			}
			text = strings.Join(parts, " ")
		}
	}
	if text == "" {
		return nil, false
	}

	model := req.Model
	if model == "" {
		model = SiteGemini
	}
	return &PromptSent{
		Site:        SiteGemini,
		Model:       model,
		InputTokens: EstimateTokens(text),
	}, true
}

func (geminiAdapter) NewStream() StreamAccumulator {
	return &geminiStream{model: SiteGemini}
}

type geminiStream struct {
	text  strings.Builder
	model string
}

type geminiChunk struct {
	ModelVersion string `json:"modelVersion"`
	Candidates   []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (s *geminiStream) ConsumeFragment(line []byte) []Event {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil
	}
	// Gemini chunks may or may not carry SSE framing.
	if data, ok := sseData(line); ok {
		trimmed = data
	}

	var chunk geminiChunk
	if err := json.Unmarshal([]byte(trimmed), &chunk); err != nil {
		return nil
	}

	if chunk.ModelVersion != "" {
		s.model = chunk.ModelVersion
	}

	finished := false
	for _, cand := range chunk.Candidates {
		for _, part := range cand.Content.Parts {
			s.text.WriteString(part.Text)
		}
		if cand.FinishReason == "STOP" {
			finished = true
		}
	}

	if !finished || s.text.Len() == 0 {
		return nil
	}

	tokens := EstimateTokens(s.text.String())
	grams, _ := emission.EstimateGrams(s.model, tokens)
	out := ResponseReceived{
		Site:         SiteGemini,
		Model:        s.model,
		OutputTokens: tokens,
		CO2Grams:     grams,
	}
	s.text.Reset()
	return []Event{out}
}
