package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/testutil"
)

func TestCreateInviteDefaults(t *testing.T) {
	e := newEnv(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.inviteSvc.now = func() time.Time { return fixed }

	inv, err := e.inviteSvc.Create(context.Background(), testutil.SeedServerID, testutil.SeedOwnerID, &models.CreateInviteRequest{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !inv.OneTimeUse {
		t.Error("invites should be one-time by default")
	}
	if len(inv.Code) != 16 {
		t.Errorf("code %q, want 16 hex characters", inv.Code)
	}
	if inv.ExpiresAt == nil || !inv.ExpiresAt.Equal(fixed.Add(7*24*time.Hour)) {
		t.Errorf("expires_at = %v", inv.ExpiresAt)
	}

	forever, err := e.inviteSvc.Create(context.Background(), testutil.SeedServerID, testutil.SeedOwnerID,
		&models.CreateInviteRequest{ExpiresInMinutes: ptr(0), OneTimeUse: ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if forever.ExpiresAt != nil || forever.OneTimeUse {
		t.Errorf("invite = %+v, want reusable without expiry", forever)
	}
}

func TestCreateInviteRoleRequirements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mod := "seed-user-cpw-235-3"

	if _, err := e.serverSvc.UpdateMemberRole(ctx, testutil.SeedServerID, testutil.SeedOwnerID, mod, models.RoleModerator); err != nil {
		t.Fatal(err)
	}

	req := &models.CreateInviteRequest{}
	if _, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedMemberID, req); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("member on public server: err = %v, want ErrForbidden", err)
	}
	if _, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, mod, req); err != nil {
		t.Errorf("moderator on public server: %v", err)
	}

	level := models.PrivacyOwnerInvite
	if _, err := e.serverSvc.Update(ctx, testutil.SeedServerID, testutil.SeedOwnerID, &models.UpdateServerRequest{PrivacyLevel: &level}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, mod, req); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("moderator on owner-invite server: err = %v, want ErrForbidden", err)
	}
	if _, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID, req); err != nil {
		t.Errorf("owner on owner-invite server: %v", err)
	}

	outsider := testutil.CreateUser(t, e.db, "Outsider")
	if _, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, outsider, req); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("outsider: err = %v, want ErrForbidden", err)
	}
}

func TestCreateTargetedInvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID,
		&models.CreateInviteRequest{InvitedUserID: ptr(testutil.SeedMemberID)})
	if !errors.Is(err, pkg.ErrConflict) {
		t.Errorf("inviting a member: err = %v, want ErrConflict", err)
	}

	_, err = e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID,
		&models.CreateInviteRequest{InvitedUserID: ptr("nobody")})
	if !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("inviting an unknown user: err = %v, want ErrNotFound", err)
	}
}

func TestCreateInviteCodeCollision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	codes := []string{testutil.SeedInviteCode, testutil.SeedInviteCode, "FRESHCODE0000001"}
	calls := 0
	e.inviteSvc.generateCode = func() (string, error) {
		code := codes[calls]
		calls++
		return code, nil
	}

	inv, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID, &models.CreateInviteRequest{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.Code != "FRESHCODE0000001" || calls != 3 {
		t.Errorf("code = %q after %d attempts", inv.Code, calls)
	}

	calls = 0
	e.inviteSvc.generateCode = func() (string, error) {
		calls++
		return testutil.SeedInviteCode, nil
	}
	_, err = e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID, &models.CreateInviteRequest{})
	if !errors.Is(err, pkg.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if calls != maxCodeAttempts {
		t.Errorf("attempts = %d, want %d", calls, maxCodeAttempts)
	}
}

func TestRedeemJoinsServer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	newcomer := testutil.CreateUser(t, e.db, "Newcomer")

	res, err := e.inviteSvc.Redeem(ctx, testutil.SeedInviteCode, newcomer)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.AlreadyMember || res.ServerID != testutil.SeedServerID || res.Membership.Role != models.RoleMember {
		t.Errorf("result = %+v", res)
	}
	if res.Membership.InviteID == nil || *res.Membership.InviteID != 1 {
		t.Errorf("membership invite id = %v, want 1", res.Membership.InviteID)
	}

	ok, err := e.gate.IsMember(ctx, testutil.SeedServerID, newcomer)
	if err != nil || !ok {
		t.Errorf("IsMember = %v, %v", ok, err)
	}

	inv, err := e.invites.GetByCode(ctx, testutil.SeedInviteCode)
	if err != nil {
		t.Fatal(err)
	}
	if inv.TimesUsed != 1 {
		t.Errorf("times_used = %d, want 1", inv.TimesUsed)
	}
}

func TestRedeemCodeIgnoresCase(t *testing.T) {
	e := newEnv(t)
	newcomer := testutil.CreateUser(t, e.db, "Newcomer")

	if _, err := e.inviteSvc.Redeem(context.Background(), "cpw235-test", newcomer); err != nil {
		t.Errorf("Redeem: %v", err)
	}
}

func TestRedeemExistingMemberKeepsInvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID, &models.CreateInviteRequest{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.inviteSvc.Redeem(ctx, inv.Code, testutil.SeedMemberID)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !res.AlreadyMember || res.Membership == nil || res.Membership.UserID != testutil.SeedMemberID {
		t.Errorf("result = %+v, want AlreadyMember with the existing membership", res)
	}

	after, err := e.invites.GetByCode(ctx, inv.Code)
	if err != nil {
		t.Fatal(err)
	}
	if after.Used || after.TimesUsed != 0 {
		t.Errorf("invite consumed by an existing member: %+v", after)
	}
}

func TestRedeemOneTimeRace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID, &models.CreateInviteRequest{})
	if err != nil {
		t.Fatal(err)
	}

	const racers = 8
	users := make([]string, racers)
	for i := range users {
		users[i] = testutil.CreateUser(t, e.db, "Racer")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
		other     []error
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := e.inviteSvc.Redeem(ctx, inv.Code, userID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, pkg.ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(u)
	}
	wg.Wait()

	if winners != 1 || conflicts != racers-1 || len(other) != 0 {
		t.Fatalf("winners=%d conflicts=%d other=%v", winners, conflicts, other)
	}

	count, err := e.members.CountByServer(ctx, testutil.SeedServerID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 7 {
		t.Errorf("member count = %d, want 7", count)
	}
}

func TestRedeemRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stranger := testutil.CreateUser(t, e.db, "Stranger")
	target := testutil.CreateUser(t, e.db, "Target")

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.inviteSvc.now = func() time.Time { return fixed }

	shortLived, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID,
		&models.CreateInviteRequest{ExpiresInMinutes: ptr(5)})
	if err != nil {
		t.Fatal(err)
	}
	targeted, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID,
		&models.CreateInviteRequest{InvitedUserID: ptr(target)})
	if err != nil {
		t.Fatal(err)
	}

	e.inviteSvc.now = func() time.Time { return fixed.Add(5 * time.Minute) }

	if _, err := e.inviteSvc.Redeem(ctx, shortLived.Code, stranger); !errors.Is(err, pkg.ErrExpired) {
		t.Errorf("expired: err = %v, want ErrExpired", err)
	}
	if _, err := e.inviteSvc.Redeem(ctx, targeted.Code, stranger); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("wrong user: err = %v, want ErrForbidden", err)
	}
	if _, err := e.inviteSvc.Redeem(ctx, "NOPE", stranger); !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("unknown code: err = %v, want ErrNotFound", err)
	}
	if _, err := e.inviteSvc.Redeem(ctx, targeted.Code, target); err != nil {
		t.Errorf("intended user: %v", err)
	}
	if _, err := e.inviteSvc.Redeem(ctx, targeted.Code, target); err != nil {
		t.Errorf("second redeem by the new member should report already member: %v", err)
	}
}

func TestPreview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.inviteSvc.Preview(ctx, testutil.SeedInviteCode)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if p.ServerName != "CPW 235" || p.MemberCount != 6 || p.ExpiresAt != nil {
		t.Errorf("preview = %+v", p)
	}

	inv, err := e.inviteSvc.Create(ctx, testutil.SeedServerID, testutil.SeedOwnerID, &models.CreateInviteRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.inviteSvc.Redeem(ctx, inv.Code, testutil.CreateUser(t, e.db, "First")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.inviteSvc.Preview(ctx, inv.Code); !errors.Is(err, pkg.ErrConflict) {
		t.Errorf("consumed preview: err = %v, want ErrConflict", err)
	}
}

func TestRevokeInvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.inviteSvc.Revoke(ctx, testutil.SeedServerID, 1, testutil.SeedMemberID); !errors.Is(err, pkg.ErrForbidden) {
		t.Errorf("member revoke: err = %v", err)
	}
	if err := e.inviteSvc.Revoke(ctx, testutil.SeedServerID, 1, testutil.SeedOwnerID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.inviteSvc.Redeem(ctx, testutil.SeedInviteCode, testutil.CreateUser(t, e.db, "Late")); !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("revoked code: err = %v, want ErrNotFound", err)
	}

	list, err := e.inviteSvc.ListByServer(ctx, testutil.SeedServerID, testutil.SeedOwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("invites = %d, want 0", len(list))
	}
}
