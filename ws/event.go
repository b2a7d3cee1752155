// Package ws carries the real-time side of the chat: one Hub per process
// tracks live connections and the channel groups they subscribe to.
//
// Flow:
//  1. A client connects to /ws?token=JWT; Handler validates the token and
//     registers a Client with the Hub.
//  2. join_channel is authorized by the OnJoinChannel callback, then the
//     client is added to the channel's group.
//  3. send_message goes through OnSendMessage (validate, persist); the
//     message service publishes receive_message back through the Hub to
//     every client in the group.
//  4. On disconnect the client is removed from every group.
package ws

import (
	"encoding/json"
	"time"

	"github.com/akinalp/corkboard/models"
)

// Event is one websocket frame in either direction.
//
// Seq increases per outbound event so clients can spot gaps. Ref is chosen
// by the client and echoed on the ack, error or messages reply to that
// request.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
	Ref  string `json:"ref,omitempty"`
}

// inboundEvent defers decoding of the payload until the op is known.
type inboundEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
	Ref  string          `json:"ref"`
}

// Client → server
const (
	OpHeartbeat        = "heartbeat"
	OpJoinChannel      = "join_channel"
	OpLeaveChannel     = "leave_channel"
	OpSendMessage      = "send_message"
	OpLoadMoreMessages = "load_more_messages"
)

// Server → client
const (
	OpReady          = "ready"
	OpHeartbeatAck   = "heartbeat_ack"
	OpAck            = "ack"
	OpError          = "error"
	OpReceiveMessage = "receive_message"
	OpMessages       = "messages"
	OpChannelDelete  = "channel_delete"
)

// ReadyData is sent once after the connection is registered.
type ReadyData struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ChannelData is the payload of join_channel, leave_channel and
// channel_delete.
type ChannelData struct {
	ChannelID int64 `json:"channel_id"`
}

// SendMessageData is the payload of send_message.
type SendMessageData struct {
	ChannelID int64  `json:"channel_id"`
	Text      string `json:"text"`
}

// LoadMoreData is the payload of load_more_messages. A nil Before loads the
// most recent page.
type LoadMoreData struct {
	ChannelID int64      `json:"channel_id"`
	Before    *time.Time `json:"before"`
	Limit     int        `json:"limit"`
}

// AckData confirms a request.
type AckData struct {
	Op        string `json:"op"`
	ChannelID int64  `json:"channel_id,omitempty"`
}

// ErrorData reports a failed request to the sender only.
type ErrorData struct {
	Op      string `json:"op,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReceiveMessageData is fanned out to a channel group for each new message.
type ReceiveMessageData struct {
	ChannelID int64 `json:"channel_id"`
	models.MessageDTO
}

// MessagesData answers load_more_messages. An empty list means there is no
// older history.
type MessagesData struct {
	ChannelID int64               `json:"channel_id"`
	Messages  []models.MessageDTO `json:"messages"`
}
