package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tcmclinic/internal/middleware"
	"tcmclinic/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

type fakeVerifier map[string]*auth.User

func (f fakeVerifier) Verify(_ context.Context, credential string) (*auth.User, error) {
	user, ok := f[credential]
	if !ok {
		return nil, errors.New("token signature invalid")
	}
	return user, nil
}

func setupAuthApp(t *testing.T) (*fiber.App, *auth.SessionManager) {
	t.Helper()

	sessions, err := auth.NewSessionManager("test-session-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	allowed, err := auth.NewAllowList([]string{"Doctor@Clinic.tw"}, "")
	if err != nil {
		t.Fatalf("NewAllowList failed: %v", err)
	}
	verifier := fakeVerifier{
		"good":     {ID: "g-1", Email: "doctor@clinic.tw", Name: "林醫師"},
		"stranger": {ID: "g-2", Email: "someone@example.com"},
	}

	h := NewAuthHandler(verifier, sessions, allowed, true)
	app := fiber.New()
	app.Post("/api/auth/google", h.Google)
	app.Get("/api/auth/session", h.Session)
	app.Post("/api/auth/signout", h.SignOut)
	return app, sessions
}

func TestAuthHandler_Google(t *testing.T) {
	app, _ := setupAuthApp(t)

	tests := []struct {
		name       string
		credential string
		wantStatus int
	}{
		{"allowed user", "good", 200},
		{"missing credential", "", 400},
		{"bad token", "forged", 401},
		{"not on allow list", "stranger", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest("POST", "/api/auth/google", map[string]string{"credential": tt.credential}))
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus != 200 {
				return
			}

			cookie := resp.Header.Get("Set-Cookie")
			for _, want := range []string{middleware.SessionCookie + "=", "HttpOnly", "secure", "SameSite=Lax"} {
				if !strings.Contains(strings.ToLower(cookie), strings.ToLower(want)) {
					t.Errorf("Expected %q in cookie %q", want, cookie)
				}
			}
			body := decodeBody(t, resp)
			user := body["user"].(map[string]interface{})
			if user["email"] != "doctor@clinic.tw" || body["token"] == "" {
				t.Errorf("Unexpected body %v", body)
			}
		})
	}
}

func TestAuthHandler_Session(t *testing.T) {
	app, sessions := setupAuthApp(t)

	token, _, err := sessions.Issue(&auth.User{ID: "g-1", Email: "doctor@clinic.tw", Name: "林醫師"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	outsider, _, _ := sessions.Issue(&auth.User{Email: "removed@clinic.tw"})

	tests := []struct {
		name       string
		cookie     string
		bearer     string
		wantStatus int
	}{
		{"cookie", token, "", 200},
		{"bearer", "", token, 200},
		{"none", "", "", 401},
		{"garbage", "not-a-jwt", "", 401},
		{"no longer allowed", outsider, "", 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/auth/session", nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", middleware.SessionCookie+"="+tt.cookie)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus == 200 {
				body := decodeBody(t, resp)
				if body["user"].(map[string]interface{})["name"] != "林醫師" {
					t.Errorf("Unexpected session body %v", body)
				}
			}
		})
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	app, _ := setupAuthApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/auth/signout", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	cookie := resp.Header.Get("Set-Cookie")
	if !strings.HasPrefix(cookie, middleware.SessionCookie+"=;") {
		t.Errorf("Expected cleared cookie, got %q", cookie)
	}
	if body := decodeBody(t, resp); body["success"] != true {
		t.Errorf("Unexpected body %v", body)
	}
}
