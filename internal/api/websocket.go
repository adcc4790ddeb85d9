package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/msgbridge/internal/delivery"
	"github.com/nerrad567/msgbridge/internal/infrastructure/config"
	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
)

// WebSocket event types.
const (
	WSTypeMessage  = "message"
	WSTypeActivity = "topic_activity"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage is the envelope for every frame sent to a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// wsClient is one connected WebSocket consumer. Each client owns its
// connection and a bounded send buffer; a slow client drops frames rather
// than stalling the stream it is fed from.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *logging.Logger
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the HTTP connection and streams live events.
//
// Query parameters:
//   - topic: optional filter; empty streams every topic
//   - stream: "activity" streams new-topic notifications instead of messages
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		logger: s.logger,
	}

	ctx, cancel := context.WithCancel(s.ctx)

	if r.URL.Query().Get("stream") == "activity" {
		go client.pumpActivity(s.service.SubscribeTopicActivity(ctx))
	} else {
		topic := r.URL.Query().Get("topic")
		var stream *delivery.Stream
		if topic == "" {
			stream = s.service.SubscribeAllTopicMessages()
		} else {
			stream = s.service.SubscribeTopicMessages(topic)
		}
		go client.pumpMessages(ctx, stream)
	}

	go client.writePump(s.cfg.WebSocket)
	go client.readPump(s.cfg.WebSocket, cancel)
}

// pumpMessages forwards a live message stream into the client send buffer.
// It owns the send channel and closes it when the stream ends.
func (c *wsClient) pumpMessages(ctx context.Context, stream *delivery.Stream) {
	defer stream.Cancel()
	defer close(c.send)

	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			return
		}
		c.trySend(WSMessage{
			Type:      WSTypeMessage,
			Topic:     msg.Topic,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Payload:   msg,
		})
	}
}

// pumpActivity forwards new-topic notifications into the client send buffer.
// The channel is closed by the service when its context is cancelled.
func (c *wsClient) pumpActivity(activity <-chan string) {
	defer close(c.send)

	for topic := range activity {
		c.trySend(WSMessage{
			Type:      WSTypeActivity,
			Topic:     topic,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// trySend marshals and queues a frame without blocking. Frames for a full
// buffer are dropped; the client is too slow to keep up.
func (c *wsClient) trySend(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal websocket frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("websocket send buffer full, dropping frame", "type", msg.Type, "topic", msg.Topic)
	}
}

// readPump reads from the connection to process control frames and detect
// disconnects. Client payloads are discarded; the endpoint is one-way.
func (c *wsClient) readPump(cfg config.WebSocketConfig, cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes queued frames to the connection and keeps it alive with
// periodic pings.
func (c *wsClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
