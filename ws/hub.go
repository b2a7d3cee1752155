package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/models"
)

// ChannelPublisher is what services use to reach channel groups.
type ChannelPublisher interface {
	// PublishToChannel delivers event to every connection in the channel's
	// group on every instance. Delivery to each connection is a
	// non-blocking enqueue.
	PublishToChannel(channelID int64, event Event)

	// DropChannel notifies and empties the group of a deleted channel.
	DropChannel(channelID int64)

	// RemoveUserFromChannels takes every connection of userID out of the
	// given groups, e.g. after the user left or was removed from a server.
	RemoveUserFromChannels(userID string, channelIDs []int64)
}

// Relay forwards channel events and unsubscribes to other instances.
type Relay interface {
	Publish(ctx context.Context, channelID int64, event Event) error
	RemoveUser(ctx context.Context, userID string, channelIDs []int64) error
}

const relayTimeout = 2 * time.Second

// Hub tracks every live connection by user and by channel group.
//
// Both maps are guarded by mu. A client's own channel set is guarded by the
// same lock so group membership and disconnect cleanup stay consistent.
type Hub struct {
	clients map[string]map[*Client]bool
	groups  map[int64]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	seq   atomic.Int64
	log   *zap.Logger
	relay Relay

	onJoinChannel  func(ctx context.Context, userID string, channelID int64) error
	onSendMessage  func(ctx context.Context, userID string, channelID int64, text string) error
	onLoadMessages func(ctx context.Context, userID string, channelID int64, before *time.Time, limit int) ([]models.MessageDTO, error)
	onDisconnect   func(userID string)
	onChannelGone  func(channelID int64)
}

// NewHub creates a Hub. Start it with go hub.Run().
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		groups:     make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// OnJoinChannel authorizes join_channel. A nil error admits the client to
// the group.
func (h *Hub) OnJoinChannel(fn func(ctx context.Context, userID string, channelID int64) error) {
	h.onJoinChannel = fn
}

// OnSendMessage handles send_message.
func (h *Hub) OnSendMessage(fn func(ctx context.Context, userID string, channelID int64, text string) error) {
	h.onSendMessage = fn
}

// OnLoadMessages answers load_more_messages.
func (h *Hub) OnLoadMessages(fn func(ctx context.Context, userID string, channelID int64, before *time.Time, limit int) ([]models.MessageDTO, error)) {
	h.onLoadMessages = fn
}

// OnDisconnect is called after a user's last connection closes.
func (h *Hub) OnDisconnect(fn func(userID string)) {
	h.onDisconnect = fn
}

// OnChannelGone is called when another instance reports a channel
// deleted, after the local group is cleared.
func (h *Hub) OnChannelGone(fn func(channelID int64)) {
	h.onChannelGone = fn
}

// SetRelay enables cross-instance fan-out.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run processes registrations until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true

	h.log.Info("client connected",
		zap.String("user_id", c.userID),
		zap.String("session_id", c.id),
		zap.Int("user_connections", len(h.clients[c.userID])),
	)
}

// removeClient drops c from its user entry and every group, then closes its
// send channel. Repeated calls are no-ops.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()

	clients, ok := h.clients[c.userID]
	if !ok || !clients[c] {
		h.mu.Unlock()
		return
	}

	delete(clients, c)
	lastConnection := len(clients) == 0
	if lastConnection {
		delete(h.clients, c.userID)
	}

	for channelID := range c.channels {
		h.leaveLocked(c, channelID)
	}

	c.closed = true
	close(c.send)
	c.cancel()
	h.mu.Unlock()

	h.log.Info("client disconnected",
		zap.String("user_id", c.userID),
		zap.String("session_id", c.id),
	)

	if lastConnection && h.onDisconnect != nil {
		h.onDisconnect(c.userID)
	}
}

// JoinGroup adds c to the channel's group. It is idempotent and ignores
// clients that already disconnected.
func (h *Hub) JoinGroup(c *Client, channelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	group, ok := h.groups[channelID]
	if !ok {
		group = make(map[*Client]bool)
		h.groups[channelID] = group
	}
	group[c] = true
	c.channels[channelID] = true
}

// LeaveGroup removes c from the channel's group. Leaving a group the client
// is not in is a no-op.
func (h *Hub) LeaveGroup(c *Client, channelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, channelID)
}

func (h *Hub) leaveLocked(c *Client, channelID int64) {
	delete(c.channels, channelID)
	group, ok := h.groups[channelID]
	if !ok {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, channelID)
	}
}

// PublishToChannel delivers locally, then hands the event to the relay.
func (h *Hub) PublishToChannel(channelID int64, event Event) {
	h.DeliverToChannel(channelID, event)

	if h.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := h.relay.Publish(ctx, channelID, event); err != nil {
		h.log.Warn("relay publish failed", zap.Int64("channel_id", channelID), zap.Error(err))
	}
}

// DeliverToChannel fans event out to this instance's connections only and
// returns how many were enqueued. The relay subscriber calls it for events
// from other instances.
func (h *Hub) DeliverToChannel(channelID int64, event Event) int {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal channel event", zap.String("op", event.Op), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.groups[channelID] {
		if h.enqueueLocked(c, data) {
			delivered++
		}
	}
	return delivered
}

// DropChannel tells the group the channel is gone and empties it.
func (h *Hub) DropChannel(channelID int64) {
	h.PublishToChannel(channelID, Event{Op: OpChannelDelete, Data: ChannelData{ChannelID: channelID}})
	h.clearGroup(channelID)
}

// DeliverRelayed handles an event published by another instance.
func (h *Hub) DeliverRelayed(channelID int64, event Event) int {
	n := h.DeliverToChannel(channelID, event)
	if event.Op == OpChannelDelete {
		h.clearGroup(channelID)
		if h.onChannelGone != nil {
			h.onChannelGone(channelID)
		}
	}
	return n
}

func (h *Hub) clearGroup(channelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.groups[channelID] {
		delete(c.channels, channelID)
	}
	delete(h.groups, channelID)
}

func (h *Hub) RemoveUserFromChannels(userID string, channelIDs []int64) {
	h.RemoveUserLocal(userID, channelIDs)

	if h.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := h.relay.RemoveUser(ctx, userID, channelIDs); err != nil {
		h.log.Warn("relay unsubscribe failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// RemoveUserLocal is RemoveUserFromChannels for this instance only.
func (h *Hub) RemoveUserLocal(userID string, channelIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[userID] {
		for _, channelID := range channelIDs {
			h.leaveLocked(c, channelID)
		}
	}
}

// sendToClient enqueues one event for a single connection.
func (h *Hub) sendToClient(c *Client, event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal event", zap.String("op", event.Op), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueueLocked(c, data)
}

// enqueueLocked must be called with mu held. A full buffer marks the client
// as a slow consumer and schedules its removal; other recipients are not
// affected.
func (h *Hub) enqueueLocked(c *Client, data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.log.Warn("send buffer full, dropping connection",
			zap.String("user_id", c.userID),
			zap.String("session_id", c.id),
		)
		go h.unregisterClient(c)
		return false
	}
}

// GroupSize reports how many local connections are in a channel group.
func (h *Hub) GroupSize(channelID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[channelID])
}

// ConnectionCount reports the number of live local connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Shutdown closes every connection and stops Run.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for c := range clients {
			c.closed = true
			close(c.send)
			c.cancel()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	h.groups = make(map[int64]map[*Client]bool)
	h.log.Info("hub shut down, all connections closed")
}
