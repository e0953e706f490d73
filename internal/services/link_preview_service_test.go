package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"tcmclinic/internal/apperr"
)

const articlePage = `<!DOCTYPE html>
<html><head>
<title> 春季養生 &amp; 飲食 </title>
<meta name="description" content="春天肝氣旺，飲食宜清淡。">
<meta property="og:image" content="/img/cover.jpg">
<link rel="shortcut icon" href="favicon.ico">
</head><body><p>內容</p></body></html>`

func newPreviewTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/blog/spring", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="icon" href="//cdn.example.org/i.png"></head><body></body></html>`))
	})
	mux.HandleFunc("/file.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})
	mux.HandleFunc("/private/page", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("robots.txt disallowed path was fetched")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLinkPreviewService_Preview(t *testing.T) {
	var hits atomic.Int32
	server := newPreviewTestServer(t, &hits)
	svc := newLinkPreviewService(false)

	preview, err := svc.Preview(context.Background(), server.URL+"/blog/spring")
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	if preview.Title != "春季養生 & 飲食" {
		t.Errorf("Unexpected title %q", preview.Title)
	}
	if preview.Description != "春天肝氣旺，飲食宜清淡。" {
		t.Errorf("Unexpected description %q", preview.Description)
	}
	if preview.Image != server.URL+"/img/cover.jpg" {
		t.Errorf("Expected image resolved against the page, got %q", preview.Image)
	}
	if preview.Favicon != server.URL+"/blog/favicon.ico" {
		t.Errorf("Expected favicon resolved against the page, got %q", preview.Favicon)
	}
	if preview.Domain != "127.0.0.1" {
		t.Errorf("Unexpected domain %q", preview.Domain)
	}

	// second call is served from cache
	if _, err := svc.Preview(context.Background(), server.URL+"/blog/spring"); err != nil {
		t.Fatalf("Cached preview failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one fetch, got %d", hits.Load())
	}
}

func TestLinkPreviewService_Fallbacks(t *testing.T) {
	server := newPreviewTestServer(t, nil)

	preview, err := newLinkPreviewService(false).Preview(context.Background(), server.URL+"/bare")
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if preview.Favicon != "http://cdn.example.org/i.png" {
		t.Errorf("Unexpected favicon %q", preview.Favicon)
	}
	if preview.Image != preview.Favicon {
		t.Errorf("Expected favicon as image fallback, got %q", preview.Image)
	}
	if preview.Title != "127.0.0.1" {
		t.Errorf("Expected hostname as title fallback, got %q", preview.Title)
	}
}

func TestLinkPreviewService_Rejects(t *testing.T) {
	server := newPreviewTestServer(t, nil)
	svc := newLinkPreviewService(false)
	ctx := context.Background()

	if _, err := svc.Preview(ctx, server.URL+"/private/page"); err == nil || !strings.Contains(err.Error(), "robots.txt") {
		t.Errorf("Expected robots.txt block, got %v", err)
	}
	if _, err := svc.Preview(ctx, server.URL+"/file.pdf"); err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Errorf("Expected content type error, got %v", err)
	}

	for _, raw := range []string{"", "not a url", "ftp://example.com/x"} {
		if _, err := svc.Preview(ctx, raw); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("Preview(%q): expected validation error, got %v", raw, err)
		}
	}
}

func TestLinkPreviewService_BlocksInternalHosts(t *testing.T) {
	svc := NewLinkPreviewService()
	for _, raw := range []string{
		"http://127.0.0.1:8080/",
		"http://localhost/admin",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/",
		"http://10.1.2.3/",
	} {
		if _, err := svc.Preview(context.Background(), raw); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("Preview(%q): expected validation error, got %v", raw, err)
		}
	}
}

func TestExtractPageMeta(t *testing.T) {
	tests := []struct {
		name string
		page string
		want pageMeta
	}{
		{
			name: "og description when no plain description",
			page: `<head><meta property="og:description" content="og desc"><meta name="twitter:image" content="t.png"></head>`,
			want: pageMeta{description: "og desc", image: "t.png"},
		},
		{
			name: "plain description wins",
			page: `<meta property="og:description" content="og"><meta name="description" content="plain">`,
			want: pageMeta{description: "plain"},
		},
		{
			name: "og image wins over twitter",
			page: `<meta name="twitter:image" content="t.png"><meta property="og:image" content="og.png">`,
			want: pageMeta{image: "og.png"},
		},
		{
			name: "apple touch icon is not a favicon",
			page: `<link rel="apple-touch-icon" href="a.png"><link rel="ICON" href="f.ico">`,
			want: pageMeta{favicon: "f.ico"},
		},
		{
			name: "first title only",
			page: `<title>One</title><svg><title>Two</title></svg>`,
			want: pageMeta{title: "One"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPageMeta([]byte(tt.page)); got != tt.want {
				t.Errorf("extractPageMeta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
