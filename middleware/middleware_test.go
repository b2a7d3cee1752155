package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/akinalp/corkboard/handlers"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/services"
	"github.com/akinalp/corkboard/testutil"
)

func TestAuthRequire(t *testing.T) {
	db := testutil.NewDB(t)
	tokens := services.NewTokenService("test-secret", "")
	users := services.NewUserService(repository.NewSQLiteUserRepo(db.Conn))
	mw := NewAuthMiddleware(tokens, users, zaptest.NewLogger(t))

	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(handlers.UserContextKey).(*models.User)
		w.WriteHeader(http.StatusNoContent)
	})
	h := mw.Require(next)

	good, err := tokens.Issue(&models.User{ID: "u-42", Username: "ada", DisplayName: "Ada"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := tokens.Issue(&models.User{ID: "u-42", Username: "ada"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"valid token", "Bearer " + good, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	if seen == nil || seen.ID != "u-42" || seen.DisplayName != "Ada" {
		t.Fatalf("context user = %+v", seen)
	}
	stored, err := users.GetByID(context.Background(), "u-42")
	if err != nil || stored.DisplayName != "Ada" {
		t.Errorf("user was not synced: %+v, %v", stored, err)
	}
}

func TestServerPolicyRequire(t *testing.T) {
	db := testutil.NewDB(t)
	gate := services.NewAuthorizationGate(repository.NewSQLiteMembershipRepo(db.Conn))
	mw := NewServerPolicyMiddleware(gate)

	var gotServer int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotServer, _ = r.Context().Value(handlers.ServerIDContextKey).(int64)
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name     string
		policy   services.Policy
		userID   string
		serverID string
		want     int
	}{
		{"member passes member policy", services.PolicyServerMember, testutil.SeedMemberID, "1", http.StatusNoContent},
		{"member fails moderator policy", services.PolicyServerModerator, testutil.SeedMemberID, "1", http.StatusForbidden},
		{"owner passes owner policy", services.PolicyServerOwner, testutil.SeedOwnerID, "1", http.StatusNoContent},
		{"stranger", services.PolicyServerMember, "stranger", "1", http.StatusForbidden},
		{"bad id", services.PolicyServerMember, testutil.SeedOwnerID, "abc", http.StatusBadRequest},
		{"unknown policy", services.Policy("server.admin"), testutil.SeedOwnerID, "1", http.StatusInternalServerError},
		{"anonymous", services.PolicyServerMember, "", "1", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/servers/"+tc.serverID+"/members", nil)
			req.SetPathValue("serverId", tc.serverID)
			if tc.userID != "" {
				req = req.WithContext(context.WithValue(req.Context(), handlers.UserContextKey, &models.User{ID: tc.userID}))
			}
			rec := httptest.NewRecorder()
			mw.Require(tc.policy, next).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	if gotServer != 1 {
		t.Errorf("server id in context = %d, want 1", gotServer)
	}
}
