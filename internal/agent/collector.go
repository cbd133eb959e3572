package agent

import (
	"strings"
	"sync"

	"github.com/ciddy0/co2ounter/internal/capture"
	"github.com/ciddy0/co2ounter/internal/logger"

	"github.com/google/uuid"
)

// Enqueuer is the delivery channel toward the aggregation service.
type Enqueuer interface {
	Enqueue(event interface{})
}

// Collector is the agent's state container: local counters, the stored
// credential, and the outbound queue. All mutation goes through Handle so
// the increment logic is testable without any transport.
type Collector struct {
	mu    sync.Mutex
	stats Stats
	token string

	store StateStore
	queue Enqueuer

	// onStatsUpdated, when set, receives a snapshot after every mutation.
	onStatsUpdated func(Stats)
}

// NewCollector loads persisted state and returns a ready collector.
func NewCollector(store StateStore, queue Enqueuer) (*Collector, error) {
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Collector{
		stats: state.Stats,
		token: state.Token,
		store: store,
		queue: queue,
	}, nil
}

// OnStatsUpdated registers the push callback for display surfaces.
func (c *Collector) OnStatsUpdated(fn func(Stats)) {
	c.mu.Lock()
	c.onStatsUpdated = fn
	c.mu.Unlock()
}

// Token returns the stored bearer credential, empty when logged out.
func (c *Collector) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Stats returns a snapshot of the local counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Handle dispatches one message. The switch is exhaustive over the Message
// union; a new variant will not compile without a case here.
func (c *Collector) Handle(msg Message) (Stats, error) {
	switch m := msg.(type) {
	case StoreToken:
		c.mu.Lock()
		c.token = m.Token
		c.mu.Unlock()
		c.save()
		return c.Stats(), nil

	case PromptSent:
		c.mu.Lock()
		c.stats.PromptCount++
		c.stats.TotalInputTokens += int64(m.InputTokens)
		c.stats.TotalCO2Grams += m.CO2
		c.mu.Unlock()
		c.save()
		c.notify()

		c.queue.Enqueue(usageEvent{
			Endpoint: "/api/prompt",
			Body: map[string]interface{}{
				"model":       siteTag(m.Model),
				"inputTokens": m.InputTokens,
				"co2":         m.CO2,
				"eventId":     uuid.New().String(),
			},
		})
		return c.Stats(), nil

	case ResponseTokens:
		c.mu.Lock()
		c.stats.TotalOutputTokens += int64(m.Tokens)
		c.stats.TotalCO2Grams += m.CO2
		c.mu.Unlock()
		c.save()
		c.notify()

		c.queue.Enqueue(usageEvent{
			Endpoint: "/api/response",
			Body: map[string]interface{}{
				"model":        siteTag(m.Model),
				"outputTokens": m.Tokens,
				"co2":          m.CO2,
				"eventId":      uuid.New().String(),
			},
		})
		return c.Stats(), nil

	case GetStats:
		return c.Stats(), nil

	case ResetStats:
		c.mu.Lock()
		c.stats = Stats{}
		c.mu.Unlock()
		c.save()
		c.notify()
		return c.Stats(), nil

	case Logout:
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		c.save()
		return c.Stats(), nil
	}

	// Unreachable while Message stays closed.
	return c.Stats(), nil
}

// HandleCaptureEvent folds an event produced by the capture adapters into
// the same path as an explicit message.
func (c *Collector) HandleCaptureEvent(event capture.Event) {
	switch e := event.(type) {
	case capture.PromptSent:
		c.Handle(PromptSent{Model: e.Site, InputTokens: e.InputTokens})
	case capture.ResponseReceived:
		c.Handle(ResponseTokens{Model: e.Site, Tokens: e.OutputTokens, CO2: e.CO2Grams})
	}
}

func (c *Collector) save() {
	c.mu.Lock()
	state := persistedState{Token: c.token, Stats: c.stats}
	c.mu.Unlock()

	if err := c.store.Save(state); err != nil {
		logger.Log.Warn("Failed to persist agent state: ", err)
	}
}

func (c *Collector) notify() {
	c.mu.Lock()
	fn := c.onStatsUpdated
	stats := c.stats
	c.mu.Unlock()

	if fn != nil {
		fn(stats)
	}
}

// siteTag maps a detected model name to the site tag the aggregation API
// accepts; unrecognized names default to chatgpt.
func siteTag(model string) string {
	name := strings.ToLower(model)
	switch {
	case strings.HasPrefix(name, capture.SiteClaude),
		strings.HasPrefix(name, "sonnet"),
		strings.HasPrefix(name, "opus"),
		strings.HasPrefix(name, "haiku"):
		return capture.SiteClaude
	case strings.HasPrefix(name, capture.SiteGemini):
		return capture.SiteGemini
	default:
		return capture.SiteChatGPT
	}
}
