package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/events"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg/cache"
	"github.com/akinalp/corkboard/pkg/ratelimit"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/testutil"
	"github.com/akinalp/corkboard/ws"
)

type published struct {
	channelID int64
	event     ws.Event
}

// recordingPublisher stands in for the hub.
type recordingPublisher struct {
	mu      sync.Mutex
	events  []published
	dropped []int64
	removed map[string][]int64
}

func (p *recordingPublisher) PublishToChannel(channelID int64, event ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{channelID: channelID, event: event})
}

func (p *recordingPublisher) DropChannel(channelID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropped = append(p.dropped, channelID)
}

func (p *recordingPublisher) RemoveUserFromChannels(userID string, channelIDs []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed == nil {
		p.removed = make(map[string][]int64)
	}
	p.removed[userID] = append(p.removed[userID], channelIDs...)
}

func (p *recordingPublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

// recordingSink collects message.created events.
type recordingSink struct {
	mu     sync.Mutex
	events []events.MessageCreated
}

func (s *recordingSink) MessageCreated(_ context.Context, evt events.MessageCreated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) received() []events.MessageCreated {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.MessageCreated(nil), s.events...)
}

// env wires every service against one seeded database.
type env struct {
	db        *database.DB
	publisher *recordingPublisher
	sink      *recordingSink

	users    repository.UserRepository
	members  repository.MembershipRepository
	invites  repository.InviteRepository
	messages repository.MessageRepository

	gate          AuthorizationGate
	channelSvc    ChannelService
	messageSvc    MessageService
	inviteSvc     *inviteService
	serverSvc     ServerService
	userSvc       UserService
	messageLimits *ratelimit.MessageRateLimiter
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)

	e := &env{
		db:        db,
		publisher: &recordingPublisher{},
		sink:      &recordingSink{},
		users:     repository.NewSQLiteUserRepo(db.Conn),
		members:   repository.NewSQLiteMembershipRepo(db.Conn),
		invites:   repository.NewSQLiteInviteRepo(db.Conn),
		messages:  repository.NewSQLiteMessageRepo(db.Conn),
	}
	servers := repository.NewSQLiteServerRepo(db.Conn)
	channels := repository.NewSQLiteChannelRepo(db.Conn)

	channelCache := cache.New[int64, *models.Channel](time.Minute, time.Minute)
	t.Cleanup(channelCache.Close)

	e.messageLimits = ratelimit.NewMessageRateLimiter(1000, time.Second, time.Second)
	t.Cleanup(e.messageLimits.Stop)
	redeemLimits := ratelimit.NewWindowLimiter(1000, time.Minute)
	t.Cleanup(redeemLimits.Stop)

	e.gate = NewAuthorizationGate(e.members)
	e.userSvc = NewUserService(e.users)
	e.channelSvc = NewChannelService(channels, e.gate, e.publisher, channelCache, log)
	e.messageSvc = NewMessageService(e.messages, servers, e.users, e.channelSvc, e.publisher, e.sink,
		e.messageLimits, 5*time.Second, time.Second, log)
	e.inviteSvc = NewInviteService(db.Conn, e.invites, servers, e.members, e.users, e.gate,
		redeemLimits, 7*24*time.Hour, log).(*inviteService)
	e.serverSvc = NewServerService(db.Conn, servers, e.members, channels, e.gate, e.channelSvc, e.publisher, log)

	return e
}

func ptr[T any](v T) *T { return &v }
