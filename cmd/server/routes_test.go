package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"tcmclinic/internal/handlers"
	"tcmclinic/internal/middleware"
	"tcmclinic/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestApp(t *testing.T) (*fiber.App, string) {
	t.Helper()

	sessions, err := auth.NewSessionManager("routes-test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	allowList, err := auth.NewAllowList([]string{"doctor@clinic.tw"}, "")
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := sessions.Issue(&auth.User{Email: "doctor@clinic.tw"})
	if err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	registerRoutes(app, routeDeps{
		sessions:  sessions,
		allowList: allowList,
		rateLimit: middleware.DefaultRateLimitConfig(),

		health:        handlers.NewHealthHandler(okPinger{}, "test"),
		auth:          handlers.NewAuthHandler(auth.NewGoogleVerifier("client-id"), sessions, allowList, false),
		importer:      handlers.NewImportHandler(nil),
		patients:      handlers.NewPatientHandler(nil),
		records:       handlers.NewRecordsHandler(nil, nil),
		notifications: handlers.NewNotificationHandler(nil, false),
		sync:          handlers.NewSyncHandler(nil, false),
		linkPreview:   handlers.NewLinkPreviewHandler(nil),
	})
	return app, token
}

func TestRoutes_SessionGate(t *testing.T) {
	app, token := newTestApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health is public", "GET", "/api/health", "", 200},
		{"session probe is public", "GET", "/api/auth/session", "", 401},
		{"users need a session", "GET", "/api/users", "", 401},
		{"import needs a session", "POST", "/api/import/line-csv", "", 401},
		{"export needs a session", "GET", "/api/records/weekly/export", "", 401},
		{"jobs with session", "GET", "/api/jobs", token, 200},
		{"sync disabled with session", "POST", "/api/sync/line-users", token, 503},
		{"notifications disabled with session", "POST", "/api/notifications/send", token, 503},
		{"sync description", "GET", "/api/sync/line-users", token, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
