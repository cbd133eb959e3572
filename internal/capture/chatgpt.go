package capture

import (
	"encoding/json"
	"strings"

	"github.com/ciddy0/co2ounter/internal/emission"
)

// ChatGPT's conversation endpoint streams SSE data lines carrying JSON-patch
// style delta operations, terminated by a literal [DONE] sentinel.
type chatgptAdapter struct{}

func (chatgptAdapter) Site() string { return SiteChatGPT }

func (chatgptAdapter) MatchesRequest(url string) bool {
	if !strings.Contains(url, "backend-api/conversation") &&
		!strings.Contains(url, "backend-api/f/conversation") {
		return false
	}
	for _, skip := range []string{"/prepare", "/stream_status", "/experimental/", "/autocompletions"} {
		if strings.Contains(url, skip) {
			return false
		}
	}
	return true
}

type chatgptRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role   string `json:"role"`
		Author struct {
			Role string `json:"role"`
		} `json:"author"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func (a chatgptAdapter) PromptFromRequest(url string, body []byte) (*PromptSent, bool) {
	var req chatgptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false
	}

	var text string
	for _, msg := range req.Messages {
		if msg.Role != "user" && msg.Author.Role != "user" {
			continue
		}
		// content is either a plain string or {parts: [...]}
		var s string
		if err := json.Unmarshal(msg.Content, &s); err == nil {
			text = s
			continue
		}
		var structured struct {
			Parts []string `json:"parts"`
		}
		if err := json.Unmarshal(msg.Content, &structured); err == nil {
			text = strings.Join(structured.Parts, " ")
		}
	}

	if text == "" {
		return nil, false
	}

	model := req.Model
	if model == "" {
		model = SiteChatGPT
	}
	return &PromptSent{
		Site:        SiteChatGPT,
		Model:       model,
		InputTokens: EstimateTokens(text),
	}, true
}

func (chatgptAdapter) NewStream() StreamAccumulator {
	return &chatgptStream{model: SiteChatGPT}
}

type chatgptStream struct {
	text  strings.Builder
	model string
	done  bool
}

type chatgptDelta struct {
	V     json.RawMessage `json:"v"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type chatgptPatchOp struct {
	O string `json:"o"`
	P string `json:"p"`
	V string `json:"v"`
}

type chatgptMessageEnvelope struct {
	Message struct {
		Content struct {
			Parts []string `json:"parts"`
		} `json:"content"`
		Metadata struct {
			ModelSlug string `json:"model_slug"`
		} `json:"metadata"`
	} `json:"message"`
}

func (s *chatgptStream) ConsumeFragment(line []byte) []Event {
	data, ok := sseData(line)
	if !ok || s.done {
		return nil
	}

	if data == "[DONE]" {
		s.done = true
		if s.text.Len() == 0 {
			return nil
		}
		tokens := EstimateTokens(s.text.String())
		grams, _ := emission.EstimateGrams(s.model, tokens)
		return []Event{ResponseReceived{
			Site:         SiteChatGPT,
			Model:        s.model,
			OutputTokens: tokens,
			CO2Grams:     grams,
		}}
	}

	var delta chatgptDelta
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return nil
	}

	// Delta batches: v is an array of patch operations appending to the
	// message's content parts.
	var ops []chatgptPatchOp
	if err := json.Unmarshal(delta.V, &ops); err == nil {
		for _, op := range ops {
			if op.O == "append" && strings.Contains(op.P, "/message/content/parts/") {
				s.text.WriteString(op.V)
			}
		}
		return nil
	}

	// Initial message creation: v is an envelope carrying the first parts
	// and the model slug.
	var envelope chatgptMessageEnvelope
	if err := json.Unmarshal(delta.V, &envelope); err == nil {
		if slug := envelope.Message.Metadata.ModelSlug; slug != "" {
			s.model = slug
		}
		if parts := envelope.Message.Content.Parts; len(parts) > 0 && parts[0] != "" && s.text.Len() == 0 {
			s.text.WriteString(parts[0])
		}
	}

	// Standard OpenAI delta shapes as a fallback.
	if delta.Delta.Content != "" {
		s.text.WriteString(delta.Delta.Content)
	} else if len(delta.Choices) > 0 && delta.Choices[0].Delta.Content != "" {
		s.text.WriteString(delta.Choices[0].Delta.Content)
	}

	return nil
}
