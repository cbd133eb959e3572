// Package capture derives usage events from observed chat-provider traffic.
//
// Each supported site has an adapter that knows which outgoing request shape
// carries the user's prompt and how the streamed response body encodes
// incremental text. Providers do not document these formats and change them
// freely, so every adapter is best-effort glue: anything it cannot parse is
// skipped, never fatal.
package capture

// Event is the closed set of usage events an adapter can emit.
type Event interface {
	eventTag()
}

// PromptSent is emitted once per user turn when the outgoing request is
// observed.
type PromptSent struct {
	// Site is the provider family tag (chatgpt, claude, gemini) accepted
	// by the aggregation API.
	Site string
	// Model is the detected model identifier, which may be more specific
	// than the site tag. Falls back to the site tag when undetected.
	Model       string
	InputTokens int
}

// ResponseReceived is emitted exactly once per assistant turn when the
// stream's completion sentinel is observed.
type ResponseReceived struct {
	Site         string
	Model        string
	OutputTokens int
	CO2Grams     float64
}

func (PromptSent) eventTag()       {}
func (ResponseReceived) eventTag() {}
