package main

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/config"
	"github.com/akinalp/corkboard/events"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg/cache"
	"github.com/akinalp/corkboard/pkg/ratelimit"
	"github.com/akinalp/corkboard/services"
	"github.com/akinalp/corkboard/ws"
)

// Services groups every service instance.
type Services struct {
	Gate    services.AuthorizationGate
	Token   services.TokenService
	User    services.UserService
	Channel services.ChannelService
	Message services.MessageService
	Invite  services.InviteService
	Server  services.ServerService
}

// Background holds the long-lived helpers that need stopping on shutdown.
type Background struct {
	MessageLimiter *ratelimit.MessageRateLimiter
	RedeemLimiter  *ratelimit.WindowLimiter
	ChannelCache   *cache.TTLCache[int64, *models.Channel]
}

// Stop releases the sweeper goroutines.
func (b *Background) Stop() {
	b.MessageLimiter.Stop()
	b.RedeemLimiter.Stop()
	b.ChannelCache.Close()
}

// initServices builds the services. The gate and the channel service come
// first; the message, invite and server services depend on them.
func initServices(db *sql.DB, repos *Repositories, hub ws.ChannelPublisher, sink events.Sink, cfg *config.Config, log *zap.Logger) (*Services, *Background) {
	bg := &Background{
		MessageLimiter: ratelimit.NewMessageRateLimiter(cfg.Chat.MessageLimit, cfg.Chat.MessageWindow, cfg.Chat.MessageCooldown),
		RedeemLimiter:  ratelimit.NewWindowLimiter(cfg.Chat.RedeemLimit, cfg.Chat.RedeemWindow),
		ChannelCache:   cache.New[int64, *models.Channel](cfg.Chat.ChannelCacheTTL, cfg.Chat.ChannelCacheTTL),
	}

	gate := services.NewAuthorizationGate(repos.Membership)
	channelSvc := services.NewChannelService(repos.Channel, gate, hub, bg.ChannelCache, log.Named("channel"))

	svcs := &Services{
		Gate:    gate,
		Token:   services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer),
		User:    services.NewUserService(repos.User),
		Channel: channelSvc,
		Message: services.NewMessageService(
			repos.Message, repos.Server, repos.User, channelSvc, hub, sink,
			bg.MessageLimiter, cfg.Chat.PersistTimeout, cfg.Chat.EventTimeout,
			log.Named("message"),
		),
		Invite: services.NewInviteService(
			db, repos.Invite, repos.Server, repos.Membership, repos.User, gate,
			bg.RedeemLimiter, cfg.Chat.InviteExpiry, log.Named("invite"),
		),
		Server: services.NewServerService(
			db, repos.Server, repos.Membership, repos.Channel, gate, channelSvc, hub,
			log.Named("server"),
		),
	}
	return svcs, bg
}
