package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Send buffer size
	sendBufferSize = 256
)

// Client is one browser renderer. It only listens; the one command it
// understands is a resync request.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	// since is the sequence of the last snapshot sent; owned by the hub loop
	since uint64
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With(zap.String("connectionID", id)),
	}
}

// Start greets the client and begins its read and write pumps
func (c *Client) Start() {
	c.sendConnectionEstablished()

	// Register with hub; the hub queues the scene snapshot
	c.hub.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump reads control frames until the connection closes
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleTextMessage(message)
		case websocket.BinaryMessage:
			c.logger.Warn("Binary messages not supported")
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

			// Flush whatever queued up meanwhile, in order
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.logger.Error("Failed to write batched message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// handleTextMessage processes incoming text messages
func (c *Client) handleTextMessage(message []byte) {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(message), &frame); err != nil {
		c.logger.Debug("Ignoring unreadable client frame", zap.Error(err))
		return
	}

	switch frame.Type {
	case "pong":
		c.logger.Debug("Received pong")
	case "resync":
		c.hub.resync <- c
	default:
		c.logger.Debug("Received message from client", zap.String("type", frame.Type))
	}
}

// sendConnectionEstablished queues the greeting frame
func (c *Client) sendConnectionEstablished() {
	data, err := json.Marshal(map[string]string{"connectionId": c.id})
	if err != nil {
		c.logger.Error("Failed to marshal connection established data", zap.Error(err))
		return
	}
	frame, err := json.Marshal(&Message{
		Type:      TypeHello,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.logger.Error("Failed to marshal connection established frame", zap.Error(err))
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Error("Failed to send connection established message")
	}
}

// GetID returns the client's connection ID
func (c *Client) GetID() string {
	return c.id
}
