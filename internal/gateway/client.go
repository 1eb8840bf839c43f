package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/syntrixbase/concierge/internal/ask"
	"github.com/syntrixbase/concierge/internal/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// teardown is the registry-side cleanup run when a connection goes away.
type teardown interface {
	RemoveConnection(ctx context.Context, connectionID string)
}

// Client is a middleman between one websocket connection and the
// subscription registry.
type Client struct {
	id   string
	hub  *Hub
	bus  *ask.Bus
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan BaseMessage

	clerk  teardown
	logger *slog.Logger
}

// readPump pumps messages from the websocket connection to the dispatcher.
//
// The application runs readPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.clerk.RemoveConnection(context.Background(), c.id)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Websocket connection closed", "connectionId", c.id, "error", err)
			} else {
				c.logger.Debug("Websocket connection closed", "connectionId", c.id)
			}
			break
		}

		var msg BaseMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("Unmarshalling message", "connectionId", c.id, "error", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg BaseMessage) {
	ctx := context.Background()

	switch msg.Type {
	case TypeSubscribe:
		c.handleSubscribe(ctx, msg)
	case TypeJoin:
		c.handleJoin(ctx, msg)
	case TypeUnsubscribe:
		c.handleUnsubscribe(ctx, msg)
	case TypePublish:
		c.handlePublish(ctx, msg)
	default:
		c.reply(errorMessage(msg.ID, &realtime.Error{
			Kind:    realtime.KindInvalidInput,
			Message: "unknown message type " + msg.Type,
		}))
	}
}

func (c *Client) handleSubscribe(ctx context.Context, msg BaseMessage) {
	var payload SubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	req := &realtime.SubscribeRequest{
		Index:        payload.Index,
		Collection:   payload.Collection,
		Body:         payload.Body,
		Scope:        realtime.Scope(payload.Scope),
		Users:        realtime.Users(payload.Users),
		Volatile:     payload.Volatile,
		ConnectionID: c.id,
	}

	res, err := c.bus.Ask(ctx, realtime.AskSubscribe, req)
	if err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	result, _ := res.(*realtime.SubscribeResult)
	if result == nil {
		// Request discarded: the connection raced its own teardown.
		c.reply(BaseMessage{ID: msg.ID, Type: TypeDiscarded})
		return
	}

	c.hub.JoinChannel(result.Channel, result.RoomID, c.id)
	c.reply(BaseMessage{
		ID:      msg.ID,
		Type:    TypeSubscribeAck,
		Payload: mustMarshal(AckPayload{RoomID: result.RoomID, Channel: result.Channel}),
	})
}

func (c *Client) handleJoin(ctx context.Context, msg BaseMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	req := &realtime.JoinRequest{
		RoomID:       payload.RoomID,
		Scope:        realtime.Scope(payload.Scope),
		Users:        realtime.Users(payload.Users),
		Volatile:     payload.Volatile,
		ConnectionID: c.id,
	}

	res, err := c.bus.Ask(ctx, realtime.AskJoin, req)
	if err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	result, _ := res.(*realtime.SubscribeResult)
	if result == nil {
		c.reply(BaseMessage{ID: msg.ID, Type: TypeDiscarded})
		return
	}

	c.hub.JoinChannel(result.Channel, result.RoomID, c.id)
	c.reply(BaseMessage{
		ID:      msg.ID,
		Type:    TypeJoinAck,
		Payload: mustMarshal(AckPayload{RoomID: result.RoomID, Channel: result.Channel}),
	})
}

func (c *Client) handleUnsubscribe(ctx context.Context, msg BaseMessage) {
	var payload UnsubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	req := &realtime.UnsubscribeRequest{
		RoomID:       payload.RoomID,
		Volatile:     payload.Volatile,
		ConnectionID: c.id,
	}

	if _, err := c.bus.Ask(ctx, realtime.AskUnsubscribe, req); err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	c.hub.LeaveRoom(payload.RoomID, c.id)
	c.reply(BaseMessage{ID: msg.ID, Type: TypeUnsubscribeAck})
}

func (c *Client) handlePublish(ctx context.Context, msg BaseMessage) {
	var payload PublishPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}

	req := &realtime.PublishRequest{
		Index:        payload.Index,
		Collection:   payload.Collection,
		Body:         payload.Body,
		ConnectionID: c.id,
	}

	if _, err := c.bus.Ask(ctx, realtime.AskPublish, req); err != nil {
		c.reply(errorMessage(msg.ID, err))
		return
	}
	c.reply(BaseMessage{ID: msg.ID, Type: TypePublishAck})
}

// reply queues a message for the connection, dropping it if the connection
// is already gone.
func (c *Client) reply(msg BaseMessage) {
	defer func() {
		// The send channel is closed by the hub on unregister; a reply
		// racing the teardown is discarded.
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("Dropping reply for slow connection", "connectionId", c.id)
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *Hub, bus *ask.Bus, clerk teardown, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	client := &Client{
		id:     uuid.New().String(),
		hub:    hub,
		bus:    bus,
		conn:   conn,
		send:   make(chan BaseMessage, 256),
		clerk:  clerk,
		logger: logger,
	}
	client.hub.register(client)
	logger.Info("Websocket connection established", "connectionId", client.id)

	// Allow collection of memory referenced by the caller by doing all work
	// in new goroutines.
	go client.writePump()
	go client.readPump()
}
