// Package websocket pushes scene operations and connection state to browser
// renderers over gorilla/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types sent to clients
const (
	TypeSceneSnapshot   = "scene.snapshot"
	TypeSceneOp         = "scene.op"
	TypeConnectionState = "connection.state"
	TypeStreamCompleted = "stream.completed"
	TypePing            = "ping"
	TypeHello           = "connection.established"
)

const (
	publishTimeout      = 5 * time.Second
	healthCheckInterval = 30 * time.Second
)

// Message is one frame on the wire. Seq orders scene frames: a snapshot
// carries the sequence of the last operation it reflects, and a client never
// receives an operation at or below its snapshot's sequence.
type Message struct {
	Type      string          `json:"type"`
	Seq       uint64          `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SnapshotFunc returns the current scene as a frame payload and the
// sequence number it reflects
type SnapshotFunc func() (interface{}, uint64)

// Hub maintains active WebSocket connections and broadcasts frames to all of them
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	resync     chan *Client
	broadcast  chan *Message

	snapshotMu sync.RWMutex
	snapshot   SnapshotFunc

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	metrics *HubMetrics
}

// HubMetrics tracks WebSocket metrics
type HubMetrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesFailed    int64
	mu                sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		resync:     make(chan *Client, 100),
		broadcast:  make(chan *Message, 1024),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: &HubMetrics{},
	}
}

// SetSnapshotSource installs the function used to greet new clients
func (h *Hub) SetSnapshotSource(fn SnapshotFunc) {
	h.snapshotMu.Lock()
	h.snapshot = fn
	h.snapshotMu.Unlock()
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case client := <-h.resync:
			if h.isRegistered(client) {
				h.sendSnapshot(client)
			}

		case message := <-h.broadcast:
			h.broadcastAll(message)

		case <-ticker.C:
			h.performHealthCheck()
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
}

// Publish queues a frame for every connected client, waiting up to
// publishTimeout for room in the broadcast queue
func (h *Hub) Publish(messageType string, seq uint64, data interface{}) error {
	message, err := newMessage(messageType, seq, data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("hub stopped, message dropped")
	case <-time.After(publishTimeout):
		return fmt.Errorf("broadcast channel full, message dropped")
	}
}

// TryPublish queues a frame only if the broadcast queue has room. Callers
// holding locks the hub loop may need use it instead of Publish.
func (h *Hub) TryPublish(messageType string, seq uint64, data interface{}) error {
	message, err := newMessage(messageType, seq, data)
	if err != nil {
		return err
	}

	select {
	case <-h.ctx.Done():
		return fmt.Errorf("hub stopped, message dropped")
	default:
	}
	select {
	case h.broadcast <- message:
		return nil
	default:
		return fmt.Errorf("broadcast channel full, message dropped")
	}
}

func newMessage(messageType string, seq uint64, data interface{}) (*Message, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	return &Message{
		Type:      messageType,
		Seq:       seq,
		Data:      jsonData,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// ServeWS upgrades the request and registers the new client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	NewClient(h, conn, h.logger).Start()
}

// registerClient adds a new client and greets it with the current scene
func (h *Hub) registerClient(client *Client) {
	h.sendSnapshot(client)

	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections++
	h.metrics.mu.Unlock()

	h.logger.Info("Client registered",
		zap.String("connectionID", client.id),
		zap.Int("totalConnections", total),
	)
}

// unregisterClient removes a client connection
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		h.metrics.mu.Lock()
		h.metrics.ActiveConnections--
		h.metrics.mu.Unlock()

		h.logger.Info("Client unregistered",
			zap.String("connectionID", client.id),
			zap.Int("remainingConnections", len(h.clients)),
		)
	}
}

// sendSnapshot queues a snapshot frame and moves the client's watermark
func (h *Hub) sendSnapshot(client *Client) {
	h.snapshotMu.RLock()
	source := h.snapshot
	h.snapshotMu.RUnlock()
	if source == nil {
		return
	}

	payload, seq := source()
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal scene snapshot", zap.Error(err))
		return
	}
	frame, err := json.Marshal(&Message{
		Type:      TypeSceneSnapshot,
		Seq:       seq,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal snapshot frame", zap.Error(err))
		return
	}

	client.since = seq
	select {
	case client.send <- frame:
	default:
		h.logger.Warn("Snapshot dropped for slow client",
			zap.String("connectionID", client.id))
	}
}

// broadcastAll sends a frame to every client whose snapshot predates it
func (h *Hub) broadcastAll(message *Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		h.logger.Debug("No active connections",
			zap.String("messageType", message.Type),
		)
		return
	}

	// Marshal once for all clients
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message",
			zap.Error(err),
			zap.String("messageType", message.Type),
		)
		return
	}

	successCount := 0
	failCount := 0

	for _, client := range clients {
		if message.Seq != 0 && message.Seq <= client.since {
			continue
		}
		select {
		case client.send <- data:
			successCount++
			h.metrics.mu.Lock()
			h.metrics.MessagesSent++
			h.metrics.mu.Unlock()
		default:
			// Client's send channel is full, close it
			failCount++
			h.metrics.mu.Lock()
			h.metrics.MessagesFailed++
			h.metrics.mu.Unlock()

			h.logger.Warn("Closing slow client",
				zap.String("connectionID", client.id),
			)

			go func(c *Client) {
				c.hub.unregister <- c
				c.conn.Close()
			}(client)
		}
	}

	h.logger.Debug("Broadcast complete",
		zap.String("messageType", message.Type),
		zap.Uint64("seq", message.Seq),
		zap.Int("success", successCount),
		zap.Int("failed", failCount),
	)
}

// performHealthCheck pings all connections to check if they're alive
func (h *Hub) performHealthCheck() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ping := []byte(`{"type":"` + TypePing + `"}`)
	for client := range h.clients {
		select {
		case client.send <- ping:
		default:
			h.logger.Warn("Failed to ping client",
				zap.String("connectionID", client.id),
			)
		}
	}

	h.logger.Debug("Health check performed",
		zap.Int("totalConnections", len(h.clients)),
	)
}

// closeAllConnections closes all active connections during shutdown
func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}

	h.logger.Info("All connections closed")
}

// GetMetrics returns current hub metrics
func (h *Hub) GetMetrics() HubMetrics {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()
	return HubMetrics{
		ActiveConnections: h.metrics.ActiveConnections,
		MessagesSent:      h.metrics.MessagesSent,
		MessagesFailed:    h.metrics.MessagesFailed,
	}
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[client]
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
