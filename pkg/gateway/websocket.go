package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/riakgu/strym/pkg/logstream"
)

const (
	pingInterval    = 30 * time.Second
	pongDeadline    = 2 * pingInterval
	wsWriteDeadline = 5 * time.Second
)

// wsTransport adapts a coder/websocket connection to logstream.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteDeadline)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// clientMessage is the union of every client→server WebSocket message
// shape; unused fields are simply left zero for a given type.
type clientMessage struct {
	Type           string            `json:"type"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Filters        logstream.Filters `json:"filters,omitempty"`
}

// handleStream handles GET /stream. Authentication here is a query
// parameter, not the X-API-Key header, and a mismatch closes the socket
// with application code 4001 instead of an HTTP 401 — the key is checked
// after the upgrade is accepted, so the rejection reaches the client as a
// WebSocket close frame rather than an HTTP response.
func (g *Gateway) handleStream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if c.Query("api_key") != g.apiKey {
		_ = conn.Close(websocket.StatusCode(4001), "invalid or missing api_key")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sessionID := uuid.NewString()
	transport := &wsTransport{conn: conn}
	g.registry.Register(sessionID, transport)
	defer g.registry.Deregister(sessionID)

	if err := transport.Send(map[string]any{
		"type":        "connected",
		"session_id":  sessionID,
		"server_time": time.Now().UTC(),
	}); err != nil {
		return
	}

	pongCh := make(chan struct{}, 1)
	go g.pingLoop(ctx, sessionID, transport, pongCh)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		g.handleClientMessage(sessionID, transport, data, pongCh)
	}
}

// pingLoop emits a periodic ping and watches for the corresponding pong;
// missing one within pongDeadline terminates the session.
func (g *Gateway) pingLoop(ctx context.Context, sessionID string, transport *wsTransport, pongCh <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(pongDeadline)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pongCh:
			if !deadline.Stop() {
				select {
				case <-deadline.C:
				default:
				}
			}
			deadline.Reset(pongDeadline)
		case <-ticker.C:
			if err := transport.Send(map[string]any{"type": "ping", "timestamp": time.Now().UTC()}); err != nil {
				g.registry.Deregister(sessionID)
				return
			}
		case <-deadline.C:
			slog.Warn("websocket missed pong deadline, closing", "session_id", sessionID)
			g.registry.Deregister(sessionID)
			return
		}
	}
}

// handleClientMessage dispatches one inbound client message. Unrecognized
// types elicit an error message but never close the connection.
func (g *Gateway) handleClientMessage(sessionID string, transport *wsTransport, data []byte, pongCh chan<- struct{}) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = transport.Send(map[string]any{
			"type": "error", "code": "UNKNOWN_MESSAGE_TYPE", "message": "malformed message",
		})
		return
	}

	switch msg.Type {
	case "subscribe":
		subID := msg.SubscriptionID
		if subID == "" {
			subID = uuid.NewString()
		}
		g.registry.Subscribe(sessionID, subID, msg.Filters)
		_ = transport.Send(map[string]any{"type": "subscribed", "subscription_id": subID})

	case "unsubscribe":
		g.registry.Unsubscribe(sessionID, msg.SubscriptionID)
		_ = transport.Send(map[string]any{"type": "unsubscribed", "subscription_id": msg.SubscriptionID})

	case "pause":
		g.registry.SetPaused(sessionID, msg.SubscriptionID, true)
		_ = transport.Send(map[string]any{"type": "paused", "subscription_id": msg.SubscriptionID})

	case "resume":
		g.registry.SetPaused(sessionID, msg.SubscriptionID, false)
		_ = transport.Send(map[string]any{"type": "resumed", "subscription_id": msg.SubscriptionID})

	case "pong":
		select {
		case pongCh <- struct{}{}:
		default:
		}

	default:
		_ = transport.Send(map[string]any{
			"type": "error", "code": "UNKNOWN_MESSAGE_TYPE", "message": "unrecognized message type: " + msg.Type,
		})
	}
}
