package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"firewatch/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	broadcastBuffer = 32
	writeTimeout    = 2 * time.Second
)

// Message is the JSON document pushed to viewers.
type Message struct {
	Type  string    `json:"type"` // "state" or "alert"
	State string    `json:"state,omitempty"`
	Title string    `json:"title,omitempty"`
	Body  string    `json:"body,omitempty"`
	Time  time.Time `json:"time"`
}

// HubService fans pipeline state changes and alerts out to connected viewers.
// Broadcasting never blocks the caller; messages are dropped when the hub is
// behind.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes
// every client.
func (h *HubService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warning("Error sending message to viewer: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register blocks until Run accepts the client or ctx ends.
func (h *HubService) Register(ctx context.Context, client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *HubService) Unregister(ctx context.Context, client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-ctx.Done():
	}
}

// Broadcast queues a raw message for every viewer.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Debug("Viewer broadcast queue full, dropping message")
	}
}

func (h *HubService) publish(msg Message) {
	msg.Time = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal viewer message: %v", err)
		return
	}
	h.Broadcast(data)
}

// StateChanged reports a pipeline state to viewers.
func (h *HubService) StateChanged(state string) {
	h.publish(Message{Type: "state", State: state})
}

// Send pushes an alert to viewers, so the hub can act as an alert notifier.
func (h *HubService) Send(_ context.Context, title, body string) error {
	h.publish(Message{Type: "alert", Title: title, Body: body})
	return nil
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
