package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ciddy0/co2ounter/internal/cache"
	"github.com/ciddy0/co2ounter/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler pushes STATS_UPDATED frames to listening display
// surfaces (extension popup, dashboard) whenever a counter changes.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *WebSocketHandler) HandleConnections(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed: ", err)
		return
	}
	defer func() {
		h.unregister <- ws
		ws.Close()
	}()

	h.register <- ws

	go h.handleClientMessages(ws)

	for {
		time.Sleep(30 * time.Second)
		if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) handleClientMessages(ws *websocket.Conn) {
	for {
		var msg map[string]interface{}

		err := ws.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("WebSocket read error: ", err)
			}
			break
		}

		switch msg["type"] {
		case "subscribe":
			ws.WriteJSON(map[string]interface{}{
				"type":      "subscribed",
				"timestamp": time.Now().Unix(),
			})

		case "ping":
			ws.WriteJSON(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})

		default:
			ws.WriteJSON(map[string]interface{}{
				"type":    "error",
				"message": "Unknown message type",
			})
		}
	}
}

// RunHub owns the client set and fans stats updates out to every connection.
func (h *WebSocketHandler) RunHub(updates <-chan cache.StatsUpdate) {
	go func() {
		for update := range updates {
			h.BroadcastStatsUpdate(update)
		}
	}()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				err := client.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *WebSocketHandler) BroadcastStatsUpdate(update cache.StatsUpdate) {
	message := map[string]interface{}{
		"type":      "STATS_UPDATED",
		"identity":  update.Identity,
		"timestamp": update.Timestamp,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		logger.Log.Warn("Error marshaling broadcast message: ", err)
		return
	}

	h.broadcast <- jsonData
}
