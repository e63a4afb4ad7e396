package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
)

// Client is one websocket connection viewing a floor. It owns a view
// session whose results are streamed back as hit.result messages.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *engine.Coordinator
	send    chan []byte

	mu     sync.Mutex
	closed bool

	UserID      string
	DisplayName string
	FloorID     string
	ClientID    string
}

func NewClient(hub *Hub, conn *websocket.Conn, eng *engine.Engine, userID, displayName, clientID string) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		UserID:      userID,
		DisplayName: displayName,
		FloorID:     eng.FloorID(),
		ClientID:    clientID,
	}
	c.session = eng.NewSession(c.deliver)
	return c
}

// Serve runs the connection until the peer disconnects or ctx is done.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.sendWelcome()
	if !c.hub.Register(c) {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go c.WritePump(ctx)
	go func() {
		if err := c.session.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("hit session stopped", "error", err, "client", c.ClientID)
		}
	}()
	c.ReadPump(ctx)
}

func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			slog.Debug("read error", "error", err, "client", c.ClientID)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid message", "error", err, "client", c.ClientID)
			c.sendError("invalid message")
			continue
		}

		msg.UserID = c.UserID
		msg.ClientID = c.ClientID
		msg.FloorID = c.FloorID

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("write error", "error", err, "client", c.ClientID)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Send queues msg for the write pump. Messages are dropped when the buffer
// is full or the client has left.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "client", c.ClientID)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case TypePointerSample:
		var p PointerSamplePayload
		if !c.decode(msg, &p) {
			return
		}
		c.session.Submit(engine.Sample{X: p.X, Y: p.Y, TimestampMs: p.TimestampMs})

	case TypeViewTransform:
		var p ViewTransformPayload
		if !c.decode(msg, &p) {
			return
		}
		t, err := c.session.View().Set(engine.Transform{Scale: p.Scale, TranslateX: p.TranslateX, TranslateY: p.TranslateY})
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendTransform(t)

	case TypeViewPan:
		var p ViewPanPayload
		if !c.decode(msg, &p) {
			return
		}
		c.sendTransform(c.session.View().Update(geometry.Pt(p.DX, p.DY), p.DZ))

	case TypeViewZoom:
		var p ViewZoomPayload
		if !c.decode(msg, &p) {
			return
		}
		c.sendTransform(c.session.View().ZoomAt(geometry.Pt(p.X, p.Y), p.Factor))

	case TypePresenceUpdate:
		var p PresencePayload
		if !c.decode(msg, &p) {
			return
		}
		c.hub.updatePresence(c, &p)

	default:
		slog.Warn("unknown message type", "type", msg.Type, "client", c.ClientID)
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		slog.Warn("invalid payload", "type", msg.Type, "error", err, "client", c.ClientID)
		c.sendError("invalid " + msg.Type + " payload")
		return false
	}
	return true
}

// deliver is the session emitter. It runs on the session goroutine.
func (c *Client) deliver(r engine.HitResult) {
	out := HitResultPayload{
		ElapsedMs: r.Stats.ElapsedMs,
		SampleSeq: r.Seq,
		Overrun:   r.Stats.Overrun,
	}
	if !r.None() {
		id := r.SpaceID
		out.SpaceID = &id
	}
	payload, _ := json.Marshal(out)
	c.Send(&Message{Type: TypeHitResult, FloorID: c.FloorID, Seq: r.Seq, Payload: payload})

	c.hub.updatePresence(c, &PresencePayload{
		Cursor:       &CursorPos{X: r.Stats.Plan.X, Y: r.Stats.Plan.Y},
		HoverSpaceID: r.SpaceID,
	})
}

func (c *Client) sendTransform(t engine.Transform) {
	payload, _ := json.Marshal(ViewTransformPayload{Scale: t.Scale, TranslateX: t.TranslateX, TranslateY: t.TranslateY})
	c.Send(&Message{Type: TypeViewTransform, FloorID: c.FloorID, Payload: payload})
}

func (c *Client) sendWelcome() {
	t := c.session.View().Current()
	payload, _ := json.Marshal(struct {
		ClientID  string               `json:"clientId"`
		Transform ViewTransformPayload `json:"transform"`
	}{
		ClientID:  c.ClientID,
		Transform: ViewTransformPayload{Scale: t.Scale, TranslateX: t.TranslateX, TranslateY: t.TranslateY},
	})
	c.Send(&Message{Type: TypeWelcome, FloorID: c.FloorID, ClientID: c.ClientID, Payload: payload})
}

func (c *Client) sendError(text string) {
	payload, _ := json.Marshal(ErrorPayload{Message: text})
	c.Send(&Message{Type: TypeError, FloorID: c.FloorID, Payload: payload})
}
