package agent

import (
	"net/http"
	"sync"
	"time"

	"github.com/ciddy0/co2ounter/internal/capture"

	"github.com/gin-gonic/gin"
)

// Streams that stop receiving fragments for this long (a tab closed
// mid-response) are evicted.
const streamIdleTTL = 10 * time.Minute

// Server is the agent's localhost HTTP surface. Capture surfaces post
// tagged messages or raw provider traffic; display surfaces poll stats.
type Server struct {
	collector *Collector

	mu      sync.Mutex
	streams map[string]*streamEntry
	now     func() time.Time
}

type streamEntry struct {
	acc      capture.StreamAccumulator
	lastSeen time.Time
}

func NewServer(collector *Collector) *Server {
	return &Server{
		collector: collector,
		streams:   make(map[string]*streamEntry),
		now:       time.Now,
	}
}

// Router builds the gin engine serving the agent API.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/message", s.handleMessage)
	router.POST("/capture/request", s.handleCaptureRequest)
	router.POST("/capture/fragment", s.handleCaptureFragment)
	router.GET("/stats", s.handleStats)

	return router
}

func (s *Server) handleMessage(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	msg, err := ParseMessage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := s.collector.Handle(msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "stats": stats})
}

type captureRequestBody struct {
	URL  string `json:"url" binding:"required"`
	Body string `json:"body"`
}

// handleCaptureRequest runs an observed outgoing request through the
// provider adapters and records a prompt event when one carries prompt text.
func (s *Server) handleCaptureRequest(c *gin.Context) {
	var req captureRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	adapter, ok := capture.AdapterForRequest(req.URL)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}

	prompt, ok := adapter.PromptFromRequest(req.URL, []byte(req.Body))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"matched": true, "prompt": false})
		return
	}

	s.collector.HandleCaptureEvent(*prompt)
	c.JSON(http.StatusOK, gin.H{"matched": true, "prompt": true, "inputTokens": prompt.InputTokens})
}

type captureFragmentBody struct {
	Site   string `json:"site" binding:"required"`
	Stream string `json:"stream" binding:"required"`
	Line   string `json:"line"`
}

// handleCaptureFragment feeds one streamed response line into the stream's
// accumulator; a completed turn records a response event.
func (s *Server) handleCaptureFragment(c *gin.Context) {
	var req captureFragmentBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	adapter, ok := capture.AdapterForSite(req.Site)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown site"})
		return
	}

	now := s.now()

	s.mu.Lock()
	s.evictIdleLocked(now)

	key := req.Site + ":" + req.Stream
	entry, ok := s.streams[key]
	if !ok {
		entry = &streamEntry{acc: adapter.NewStream()}
		s.streams[key] = entry
	}
	entry.lastSeen = now

	events := entry.acc.ConsumeFragment([]byte(req.Line))
	if len(events) > 0 {
		// Turn complete, the accumulator is spent for this stream.
		delete(s.streams, key)
	}
	s.mu.Unlock()

	for _, event := range events {
		s.collector.HandleCaptureEvent(event)
	}

	c.JSON(http.StatusOK, gin.H{"events": len(events)})
}

// evictIdleLocked drops accumulators nothing has fed for streamIdleTTL.
// Caller holds s.mu.
func (s *Server) evictIdleLocked(now time.Time) {
	for key, entry := range s.streams {
		if now.Sub(entry.lastSeen) > streamIdleTTL {
			delete(s.streams, key)
		}
	}
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Stats())
}
