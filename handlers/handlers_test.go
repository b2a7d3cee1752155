package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/events"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg/cache"
	"github.com/akinalp/corkboard/pkg/ratelimit"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/services"
	"github.com/akinalp/corkboard/testutil"
	"github.com/akinalp/corkboard/ws"
)

type fixture struct {
	db      *database.DB
	hub     *ws.Hub
	server  *ServerHandler
	member  *MemberHandler
	channel *ChannelHandler
	message *MessageHandler
	invite  *InviteHandler
	health  *HealthHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	hub := ws.NewHub(log)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	users := repository.NewSQLiteUserRepo(db.Conn)
	servers := repository.NewSQLiteServerRepo(db.Conn)
	members := repository.NewSQLiteMembershipRepo(db.Conn)
	channels := repository.NewSQLiteChannelRepo(db.Conn)
	messages := repository.NewSQLiteMessageRepo(db.Conn)
	invites := repository.NewSQLiteInviteRepo(db.Conn)

	channelCache := cache.New[int64, *models.Channel](time.Minute, time.Minute)
	t.Cleanup(channelCache.Close)
	messageLimits := ratelimit.NewMessageRateLimiter(1000, time.Second, time.Second)
	t.Cleanup(messageLimits.Stop)
	redeemLimits := ratelimit.NewWindowLimiter(1000, time.Minute)
	t.Cleanup(redeemLimits.Stop)

	gate := services.NewAuthorizationGate(members)
	channelSvc := services.NewChannelService(channels, gate, hub, channelCache, log)
	messageSvc := services.NewMessageService(messages, servers, users, channelSvc, hub, events.NopSink{},
		messageLimits, 5*time.Second, time.Second, log)
	inviteSvc := services.NewInviteService(db.Conn, invites, servers, members, users, gate, redeemLimits, 24*time.Hour, log)
	serverSvc := services.NewServerService(db.Conn, servers, members, channels, gate, channelSvc, hub, log)

	return &fixture{
		db:      db,
		hub:     hub,
		server:  NewServerHandler(serverSvc),
		member:  NewMemberHandler(serverSvc),
		channel: NewChannelHandler(channelSvc),
		message: NewMessageHandler(messageSvc),
		invite:  NewInviteHandler(inviteSvc),
		health:  NewHealthHandler(db.Conn, hub),
	}
}

// request builds a request as the router and AuthMiddleware would hand it
// over: path values set and the user in the context.
func request(method, target, body, userID string, pathValues map[string]string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	if userID != "" {
		user := &models.User{ID: userID, Username: userID, DisplayName: userID}
		req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool   `json:"success"`
		Data    T      `json:"data"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

func TestMessageListPaging(t *testing.T) {
	f := newFixture(t)
	path := map[string]string{"channelId": "1"}

	rec := httptest.NewRecorder()
	f.message.List(rec, request(http.MethodGet, "/api/channels/1/messages", "", testutil.SeedMemberID, path))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	recent := decode[[]models.MessageDTO](t, rec)
	if len(recent) != 50 {
		t.Fatalf("recent = %d, want 50", len(recent))
	}

	before := recent[0].Timestamp.Format(time.RFC3339Nano)
	rec = httptest.NewRecorder()
	f.message.List(rec, request(http.MethodGet, "/api/channels/1/messages?limit=50&before="+before, "", testutil.SeedMemberID, path))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if older := decode[[]models.MessageDTO](t, rec); len(older) != 30 {
		t.Errorf("older = %d, want 30", len(older))
	}

	rec = httptest.NewRecorder()
	f.message.List(rec, request(http.MethodGet, "/api/channels/1/messages?before=yesterday", "", testutil.SeedMemberID, path))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.message.List(rec, request(http.MethodGet, "/api/channels/1/messages", "", "stranger", path))
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.message.List(rec, request(http.MethodGet, "/api/channels/x/messages", "", testutil.SeedMemberID, map[string]string{"channelId": "x"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestMessageCreate(t *testing.T) {
	f := newFixture(t)
	path := map[string]string{"channelId": "1"}

	rec := httptest.NewRecorder()
	f.message.Create(rec, request(http.MethodPost, "/api/channels/1/messages", `{"text":"posted over http"}`, testutil.SeedOwnerID, path))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	dto := decode[models.MessageDTO](t, rec)
	if dto.Text != "posted over http" || dto.SenderDisplayName != "CPW Owner" || dto.Timestamp.IsZero() {
		t.Errorf("dto = %+v", dto)
	}

	rec = httptest.NewRecorder()
	f.message.Create(rec, request(http.MethodPost, "/api/channels/1/messages", `{"text":""}`, testutil.SeedOwnerID, path))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.message.Create(rec, request(http.MethodPost, "/api/channels/99/messages", `{"text":"hi"}`, testutil.SeedOwnerID, map[string]string{"channelId": "99"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown channel status = %d", rec.Code)
	}
}

func TestServerJoinStatuses(t *testing.T) {
	f := newFixture(t)
	newcomer := testutil.CreateUser(t, f.db, "Newcomer")
	path := map[string]string{"serverId": "1"}

	rec := httptest.NewRecorder()
	f.server.Join(rec, request(http.MethodPost, "/api/servers/1/join", "", newcomer, path))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first join = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	f.server.Join(rec, request(http.MethodPost, "/api/servers/1/join", "", newcomer, path))
	if rec.Code != http.StatusOK {
		t.Fatalf("second join = %d", rec.Code)
	}
	if res := decode[models.JoinResult](t, rec); !res.AlreadyMember {
		t.Error("second join should report already_member")
	}

	rec = httptest.NewRecorder()
	f.server.Leave(rec, request(http.MethodPost, "/api/servers/1/leave", "", testutil.SeedOwnerID, path))
	if rec.Code != http.StatusConflict {
		t.Errorf("owner leave = %d, want 409", rec.Code)
	}
}

func TestServerCreateAndList(t *testing.T) {
	f := newFixture(t)
	founder := testutil.CreateUser(t, f.db, "Founder")

	rec := httptest.NewRecorder()
	f.server.Create(rec, request(http.MethodPost, "/api/servers",
		`{"name":"Night Owls","privacy_level":"owner_invite_private"}`, founder, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	f.server.Create(rec, request(http.MethodPost, "/api/servers", `{"name":"x","privacy_level":"secret"}`, founder, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown privacy = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.server.ListMine(rec, request(http.MethodGet, "/api/servers", "", founder, nil))
	if mine := decode[[]models.ServerWithRole](t, rec); len(mine) != 1 || mine[0].Role != models.RoleOwner {
		t.Errorf("mine = %+v", mine)
	}

	rec = httptest.NewRecorder()
	f.server.ListPublic(rec, request(http.MethodGet, "/api/servers/public", "", founder, nil))
	public := decode[[]models.Server](t, rec)
	if len(public) != 1 || public[0].Name != "CPW 235" {
		t.Errorf("public = %+v", public)
	}
}

func TestMemberEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.member.UpdateRole(rec, request(http.MethodPatch, "/api/servers/1/members/x", `{"role":"owner"}`, testutil.SeedOwnerID,
		map[string]string{"serverId": "1", "userId": testutil.SeedMemberID}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("grant owner = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.member.Remove(rec, request(http.MethodDelete, "/api/servers/1/members/x", "", testutil.SeedOwnerID,
		map[string]string{"serverId": "1", "userId": testutil.SeedMemberID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("remove = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	f.member.List(rec, request(http.MethodGet, "/api/servers/1/members", "", testutil.SeedOwnerID, map[string]string{"serverId": "1"}))
	if members := decode[[]models.MemberWithUser](t, rec); len(members) != 5 {
		t.Errorf("members = %d, want 5", len(members))
	}
}

func TestInviteRedeemStatuses(t *testing.T) {
	f := newFixture(t)
	newcomer := testutil.CreateUser(t, f.db, "Newcomer")
	path := map[string]string{"code": testutil.SeedInviteCode}

	rec := httptest.NewRecorder()
	f.invite.Preview(rec, request(http.MethodGet, "/api/invites/"+testutil.SeedInviteCode, "", newcomer, path))
	if p := decode[models.InvitePreview](t, rec); p.ServerName != "CPW 235" {
		t.Errorf("preview = %+v", p)
	}

	rec = httptest.NewRecorder()
	f.invite.Redeem(rec, request(http.MethodPost, "/", "", newcomer, path))
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	f.invite.Redeem(rec, request(http.MethodPost, "/", "", newcomer, path))
	if rec.Code != http.StatusOK {
		t.Errorf("repeat redeem = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.invite.Redeem(rec, request(http.MethodPost, "/", "", newcomer, map[string]string{"code": "missing"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown code = %d", rec.Code)
	}
}

func TestInviteCreateWithoutBody(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.invite.Create(rec, request(http.MethodPost, "/api/servers/1/invites", "", testutil.SeedOwnerID, map[string]string{"serverId": "1"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body)
	}
	inv := decode[models.Invite](t, rec)
	if !inv.OneTimeUse || inv.ExpiresAt == nil {
		t.Errorf("invite = %+v", inv)
	}

	rec = httptest.NewRecorder()
	f.invite.Create(rec, request(http.MethodPost, "/api/servers/1/invites", "", testutil.SeedMemberID, map[string]string{"serverId": "1"}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("member create = %d", rec.Code)
	}
}

func TestChannelEndpoints(t *testing.T) {
	f := newFixture(t)
	path := map[string]string{"serverId": "1"}

	rec := httptest.NewRecorder()
	f.channel.Create(rec, request(http.MethodPost, "/api/servers/1/channels", `{"name":"projects"}`, testutil.SeedOwnerID, path))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	f.channel.List(rec, request(http.MethodGet, "/api/servers/1/channels", "", testutil.SeedMemberID, path))
	if channels := decode[[]models.Channel](t, rec); len(channels) != 5 {
		t.Errorf("channels = %d, want 5", len(channels))
	}

	rec = httptest.NewRecorder()
	f.channel.Delete(rec, request(http.MethodDelete, "/api/servers/1/channels/2", "", testutil.SeedMemberID,
		map[string]string{"serverId": "1", "channelId": "2"}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("member delete = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.health.Check(rec, request(http.MethodGet, "/api/health", "", "", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h := decode[HealthResponse](t, rec); h.Status != "ok" || h.Connections != 0 {
		t.Errorf("health = %+v", h)
	}

	f.db.Close()
	rec = httptest.NewRecorder()
	f.health.Check(rec, request(http.MethodGet, "/api/health", "", "", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("closed db status = %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	rec := httptest.NewRecorder()
	NewAuthHandler().Me(rec, request(http.MethodGet, "/api/users/me", "", "", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewAuthHandler().Me(rec, request(http.MethodGet, "/api/users/me", "", "u-9", nil))
	if u := decode[models.User](t, rec); u.ID != "u-9" {
		t.Errorf("user = %+v", u)
	}
}
