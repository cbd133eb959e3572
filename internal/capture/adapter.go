package capture

import (
	"strings"
)

// Site tags accepted by the aggregation API.
const (
	SiteChatGPT = "chatgpt"
	SiteClaude  = "claude"
	SiteGemini  = "gemini"
)

// Adapter observes one provider's traffic. Implementations are pure parsers:
// no I/O, no shared state outside the stream accumulator they hand out.
type Adapter interface {
	// Site returns the provider family tag.
	Site() string
	// MatchesRequest reports whether a URL belongs to this provider's
	// prompt/completion endpoint.
	MatchesRequest(url string) bool
	// PromptFromRequest extracts the user's prompt from an outgoing
	// request body. Returns false when the body carries no prompt text.
	PromptFromRequest(url string, body []byte) (*PromptSent, bool)
	// NewStream returns an accumulator for one streamed response.
	NewStream() StreamAccumulator
}

// StreamAccumulator folds streamed response fragments into at most one
// ResponseReceived per assistant turn. Fragments that do not parse are
// skipped silently.
type StreamAccumulator interface {
	ConsumeFragment(line []byte) []Event
}

// Adapters returns one adapter per supported site.
func Adapters() []Adapter {
	return []Adapter{
		&chatgptAdapter{},
		&claudeAdapter{},
		&geminiAdapter{},
	}
}

// AdapterForRequest picks the adapter whose endpoint the URL belongs to.
func AdapterForRequest(url string) (Adapter, bool) {
	for _, a := range Adapters() {
		if a.MatchesRequest(url) {
			return a, true
		}
	}
	return nil, false
}

// AdapterForSite returns the adapter for a site tag.
func AdapterForSite(site string) (Adapter, bool) {
	for _, a := range Adapters() {
		if a.Site() == site {
			return a, true
		}
	}
	return nil, false
}

// sseData strips the "data:" framing from an SSE line. Event-name lines and
// anything else that is not a data line are rejected.
func sseData(line []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(line))
	if !strings.HasPrefix(trimmed, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")), true
}
