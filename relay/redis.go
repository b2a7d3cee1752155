// Package relay carries channel fan-out between instances over Redis
// pub/sub. Each instance delivers to its own connections first and then
// publishes; subscribers skip envelopes they published themselves.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akinalp/corkboard/ws"
)

const (
	kindEvent      = "event"
	kindRemoveUser = "remove_user"
)

// Target is the local side of the relay, normally the ws hub.
type Target interface {
	DeliverRelayed(channelID int64, event ws.Event) int
	RemoveUserLocal(userID string, channelIDs []int64)
}

type envelope struct {
	Origin     string          `json:"origin"`
	Kind       string          `json:"kind"`
	ChannelID  int64           `json:"channel_id,omitempty"`
	Event      json.RawMessage `json:"event,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	ChannelIDs []int64         `json:"channel_ids,omitempty"`
}

// wireEvent keeps the payload undecoded; it is re-sent as is.
type wireEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Ref  string          `json:"ref,omitempty"`
}

var (
	_ ws.Relay = (*Redis)(nil)
	_ Target   = (*ws.Hub)(nil)
)

// Redis publishes and consumes envelopes on one pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisClient opens a client and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedis creates a relay with a fresh instance id.
func NewRedis(client *redis.Client, channel string, log *zap.Logger) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}
}

// Origin is this instance's id.
func (r *Redis) Origin() string {
	return r.origin
}

func (r *Redis) Publish(ctx context.Context, channelID int64, event ws.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return r.send(ctx, envelope{Kind: kindEvent, ChannelID: channelID, Event: raw})
}

func (r *Redis) RemoveUser(ctx context.Context, userID string, channelIDs []int64) error {
	return r.send(ctx, envelope{Kind: kindRemoveUser, UserID: userID, ChannelIDs: channelIDs})
}

func (r *Redis) send(ctx context.Context, env envelope) error {
	env.Origin = r.origin
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe starts consuming envelopes into target. It returns once the
// subscription is confirmed.
func (r *Redis) Subscribe(ctx context.Context, target Target) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range pubsub.Channel() {
			r.handle(target, msg.Payload)
		}
	}()

	r.log.Info("relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))
	return nil
}

func (r *Redis) handle(target Target, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("dropping malformed relay envelope", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}

	switch env.Kind {
	case kindEvent:
		var evt wireEvent
		if err := json.Unmarshal(env.Event, &evt); err != nil {
			r.log.Warn("dropping malformed relayed event", zap.Error(err))
			return
		}
		event := ws.Event{Op: evt.Op, Ref: evt.Ref}
		if len(evt.Data) > 0 {
			event.Data = evt.Data
		}
		target.DeliverRelayed(env.ChannelID, event)
	case kindRemoveUser:
		target.RemoveUserLocal(env.UserID, env.ChannelIDs)
	default:
		r.log.Warn("unknown relay envelope kind", zap.String("kind", env.Kind))
	}
}

// Close stops the subscriber and waits for it to drain.
func (r *Redis) Close() error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	r.wg.Wait()
	return err
}
