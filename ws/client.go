package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/corkboard/pkg"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long the connection may stay silent. Clients send a
	// heartbeat every 30s.
	pongWait = 90 * time.Second

	maxMessageSize = 8192

	sendBufferSize = 256

	// opTimeout bounds the callback behind a single client request.
	opTimeout = 15 * time.Second
)

// Client is one websocket connection.
//
// Requests are handled one at a time in ReadPump, so one connection's
// messages are persisted and broadcast in the order they were sent.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	id          string
	userID      string
	displayName string
	send        chan []byte
	mu          sync.Mutex

	// channels and closed are guarded by hub.mu.
	channels map[int64]bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(hub *Hub, conn *websocket.Conn, id, userID, displayName string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         hub,
		conn:        conn,
		id:          id,
		userID:      userID,
		displayName: displayName,
		send:        make(chan []byte, sendBufferSize),
		channels:    make(map[int64]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ReadPump reads frames until the connection fails, then unregisters the
// client. It runs on the handler goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Info("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.replyError(event, fmt.Errorf("%w: malformed frame", pkg.ErrBadRequest))
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event inboundEvent) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.hub.sendToClient(c, Event{Op: OpHeartbeatAck})

	case OpJoinChannel:
		c.handleJoin(event)

	case OpLeaveChannel:
		c.handleLeave(event)

	case OpSendMessage:
		c.handleSend(event)

	case OpLoadMoreMessages:
		c.handleLoadMore(event)

	default:
		c.replyError(event, fmt.Errorf("%w: unknown op %q", pkg.ErrBadRequest, event.Op))
	}
}

func (c *Client) handleJoin(event inboundEvent) {
	var data ChannelData
	if err := decodeChannel(event.Data, &data, &data.ChannelID); err != nil {
		c.replyError(event, err)
		return
	}
	if c.hub.onJoinChannel == nil {
		c.replyError(event, pkg.ErrInternal)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, opTimeout)
	defer cancel()

	if err := c.hub.onJoinChannel(ctx, c.userID, data.ChannelID); err != nil {
		c.replyError(event, err)
		return
	}

	c.hub.JoinGroup(c, data.ChannelID)

	// A removal or channel delete between the check and JoinGroup would
	// leave the connection subscribed, so check again now that it is in.
	if err := c.hub.onJoinChannel(ctx, c.userID, data.ChannelID); err != nil {
		c.hub.LeaveGroup(c, data.ChannelID)
		c.replyError(event, err)
		return
	}
	c.reply(event, OpAck, AckData{Op: event.Op, ChannelID: data.ChannelID})
}

func (c *Client) handleLeave(event inboundEvent) {
	var data ChannelData
	if err := decodeChannel(event.Data, &data, &data.ChannelID); err != nil {
		c.replyError(event, err)
		return
	}

	c.hub.LeaveGroup(c, data.ChannelID)
	c.reply(event, OpAck, AckData{Op: event.Op, ChannelID: data.ChannelID})
}

func (c *Client) handleSend(event inboundEvent) {
	var data SendMessageData
	if err := decodeChannel(event.Data, &data, &data.ChannelID); err != nil {
		c.replyError(event, err)
		return
	}
	if c.hub.onSendMessage == nil {
		c.replyError(event, pkg.ErrInternal)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, opTimeout)
	defer cancel()

	if err := c.hub.onSendMessage(ctx, c.userID, data.ChannelID, data.Text); err != nil {
		c.replyError(event, err)
		return
	}
	c.reply(event, OpAck, AckData{Op: event.Op, ChannelID: data.ChannelID})
}

func (c *Client) handleLoadMore(event inboundEvent) {
	var data LoadMoreData
	if err := decodeChannel(event.Data, &data, &data.ChannelID); err != nil {
		c.replyError(event, err)
		return
	}
	if c.hub.onLoadMessages == nil {
		c.replyError(event, pkg.ErrInternal)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, opTimeout)
	defer cancel()

	messages, err := c.hub.onLoadMessages(ctx, c.userID, data.ChannelID, data.Before, data.Limit)
	if err != nil {
		c.replyError(event, err)
		return
	}
	c.reply(event, OpMessages, MessagesData{ChannelID: data.ChannelID, Messages: messages})
}

// decodeChannel unmarshals a payload and requires a positive channel id.
func decodeChannel(raw json.RawMessage, dst any, channelID *int64) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", pkg.ErrBadRequest)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: invalid payload", pkg.ErrBadRequest)
	}
	if *channelID <= 0 {
		return fmt.Errorf("%w: channel_id is required", pkg.ErrBadRequest)
	}
	return nil
}

func (c *Client) reply(req inboundEvent, op string, data any) {
	c.hub.sendToClient(c, Event{Op: op, Data: data, Ref: req.Ref})
}

// replyError reports a failure to this connection only.
func (c *Client) replyError(req inboundEvent, err error) {
	code := errorCode(err)
	if code == CodeInternal || code == CodePersistenceFailure {
		c.hub.log.Error("request failed",
			zap.String("op", req.Op),
			zap.String("user_id", c.userID),
			zap.Error(err),
		)
	}
	c.reply(req, OpError, ErrorData{Op: req.Op, Code: code, Message: errorMessage(err)})
}

// WritePump drains the send buffer onto the socket and pings on idle.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pongWait / 3)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage serializes writes; gorilla connections allow one writer.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
