package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/pkg/ratelimit"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/testutil"
	"github.com/akinalp/corkboard/ws"
)

func TestSendPersistsAndFansOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	msg, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedMemberID, "hello class")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID == 0 || msg.SenderDisplayName != "CPW Student One" {
		t.Errorf("message = %+v", msg)
	}

	pub := e.publisher.published()
	if len(pub) != 1 {
		t.Fatalf("published %d events, want 1", len(pub))
	}
	if pub[0].channelID != testutil.SeedChannelID || pub[0].event.Op != ws.OpReceiveMessage {
		t.Errorf("published %+v", pub[0])
	}
	data, ok := pub[0].event.Data.(ws.ReceiveMessageData)
	if !ok {
		t.Fatalf("payload type %T", pub[0].event.Data)
	}
	if data.Text != "hello class" || data.SenderDisplayName != "CPW Student One" || !data.Timestamp.Equal(msg.CreatedAt) {
		t.Errorf("payload = %+v", data)
	}

	recent, err := e.messageSvc.GetRecent(ctx, testutil.SeedChannelID, testutil.SeedOwnerID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != msg.ID {
		t.Errorf("newest message = %+v, want id %d", recent, msg.ID)
	}

	e.messageSvc.Flush()
	got := e.sink.received()
	if len(got) != 1 || got[0].MessageID != msg.ID || got[0].ServerID != testutil.SeedServerID {
		t.Errorf("sink events = %+v", got)
	}
}

func TestSendTouchesServerActivity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	msg, err := e.messageSvc.Send(ctx, 2, testutil.SeedOwnerID, "first in asp-net-core")
	if err != nil {
		t.Fatal(err)
	}
	server, err := repository.NewSQLiteServerRepo(e.db.Conn).GetByID(ctx, testutil.SeedServerID)
	if err != nil {
		t.Fatal(err)
	}
	if server.LastMessageAt == nil || !server.LastMessageAt.Equal(msg.CreatedAt) {
		t.Errorf("last_message_at = %v, want %v", server.LastMessageAt, msg.CreatedAt)
	}
}

func TestSendRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	outsider := testutil.CreateUser(t, e.db, "Outsider")

	cases := []struct {
		name      string
		channelID int64
		userID    string
		text      string
		want      error
	}{
		{"non-member", testutil.SeedChannelID, outsider, "let me in", pkg.ErrForbidden},
		{"unknown channel", 999, testutil.SeedOwnerID, "hello?", pkg.ErrNotFound},
		{"blank text", testutil.SeedChannelID, testutil.SeedOwnerID, "   ", pkg.ErrBadRequest},
		{"too long", testutil.SeedChannelID, testutil.SeedOwnerID, strings.Repeat("x", models.MaxMessageLength+1), pkg.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.messageSvc.Send(ctx, tc.channelID, tc.userID, tc.text); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if n := len(e.publisher.published()); n != 0 {
		t.Errorf("rejected sends published %d events", n)
	}
}

func TestSendAfterRemovalIsDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedMemberID, "before"); err != nil {
		t.Fatal(err)
	}
	if err := e.serverSvc.RemoveMember(ctx, testutil.SeedServerID, testutil.SeedOwnerID, testutil.SeedMemberID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedMemberID, "after"); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestSendRateLimited(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	limiter := ratelimit.NewMessageRateLimiter(2, time.Minute, time.Minute)
	t.Cleanup(limiter.Stop)
	e.messageSvc.(*messageService).limiter = limiter

	for i := 0; i < 2; i++ {
		if _, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedOwnerID, "ok"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedOwnerID, "one too many"); !errors.Is(err, pkg.ErrTooManyRequests) {
		t.Errorf("err = %v, want ErrTooManyRequests", err)
	}
	if _, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedMemberID, "someone else"); err != nil {
		t.Errorf("limit should be per user: %v", err)
	}
}

// failingMessageRepo fails every write.
type failingMessageRepo struct {
	repository.MessageRepository
}

func (failingMessageRepo) Create(context.Context, *models.Message) error {
	return errors.New("disk I/O error")
}

func TestSendPersistenceFailureBroadcastsNothing(t *testing.T) {
	e := newEnv(t)
	svc := e.messageSvc.(*messageService)
	svc.messageRepo = failingMessageRepo{svc.messageRepo}

	_, err := e.messageSvc.Send(context.Background(), testutil.SeedChannelID, testutil.SeedOwnerID, "lost")
	if !errors.Is(err, pkg.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	e.messageSvc.Flush()
	if len(e.publisher.published()) != 0 || len(e.sink.received()) != 0 {
		t.Error("a failed write must not be broadcast or emitted")
	}
}

func TestSendSurvivesCallerCancellation(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	// Authorization reads run on ctx, so cancel only once the write is
	// about to start.
	svc := e.messageSvc.(*messageService)
	svc.messageRepo = cancelBeforeCreate{MessageRepository: svc.messageRepo, cancel: cancel}

	msg, err := e.messageSvc.Send(ctx, testutil.SeedChannelID, testutil.SeedOwnerID, "still saved")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID == 0 {
		t.Error("message was not persisted")
	}
}

type cancelBeforeCreate struct {
	repository.MessageRepository
	cancel context.CancelFunc
}

func (c cancelBeforeCreate) Create(ctx context.Context, m *models.Message) error {
	c.cancel()
	return c.MessageRepository.Create(ctx, m)
}

func TestBackfillSeedHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	recent, err := e.messageSvc.GetRecent(ctx, testutil.SeedChannelID, testutil.SeedMemberID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != DefaultPageSize {
		t.Fatalf("recent = %d, want %d", len(recent), DefaultPageSize)
	}

	older, err := e.messageSvc.GetMessagesBefore(ctx, testutil.SeedChannelID, testutil.SeedMemberID, recent[0].CreatedAt, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 30 {
		t.Fatalf("older = %d, want 30", len(older))
	}
	for _, m := range older {
		if !m.CreatedAt.Before(recent[0].CreatedAt) {
			t.Fatalf("message %d at %v is not before the cursor", m.ID, m.CreatedAt)
		}
	}

	first := time.Date(2024, 11, 1, 13, 0, 0, 0, time.UTC)
	if !older[0].CreatedAt.Equal(first) {
		t.Errorf("oldest message at %v, want %v", older[0].CreatedAt, first)
	}
	last := recent[len(recent)-1].CreatedAt
	if last.After(time.Date(2024, 11, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("newest seed message at %v, want within Nov 1-6", last)
	}

	done, err := e.messageSvc.GetMessagesBefore(ctx, testutil.SeedChannelID, testutil.SeedMemberID, older[0].CreatedAt, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 0 {
		t.Errorf("expected end of history, got %d messages", len(done))
	}
}

func TestBackfillGatedAndClamped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	outsider := testutil.CreateUser(t, e.db, "Outsider")

	if _, err := e.messageSvc.GetRecent(ctx, testutil.SeedChannelID, outsider, 10); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("outsider GetRecent: err = %v", err)
	}
	if _, err := e.messageSvc.GetMessagesBefore(ctx, testutil.SeedChannelID, testutil.SeedOwnerID, time.Time{}, 10); !errors.Is(err, pkg.ErrBadRequest) {
		t.Errorf("zero cursor: err = %v", err)
	}

	all, err := e.messageSvc.GetRecent(ctx, testutil.SeedChannelID, testutil.SeedOwnerID, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != testutil.SeedMessageCount {
		t.Errorf("len = %d, want all %d seed messages under the cap", len(all), testutil.SeedMessageCount)
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-5: 50, 0: 50, 1: 1, 73: 73, 100: 100, 101: 100} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSendOrderPreservedPerSender(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := e.messageSvc.Send(ctx, 3, testutil.SeedOwnerID, string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}
	page, err := e.messageSvc.GetRecent(ctx, 3, testutil.SeedOwnerID, 5)
	if err != nil {
		t.Fatal(err)
	}
	var got strings.Builder
	for _, m := range page {
		got.WriteString(m.Content)
	}
	if got.String() != "abcde" {
		t.Errorf("order = %q", got.String())
	}

}
