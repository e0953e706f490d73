package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"tcmclinic/internal/security"
)

// previewClient fetches pages for link previews with bounded concurrency and body size
type previewClient struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	slots       chan struct{}
}

func newPreviewClient(userAgent string, maxConcurrent int, maxBodySize int64, guardDial bool) *previewClient {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if guardDial {
		dialer.Control = security.DialControl
	}

	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &previewClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				return nil
			},
		},
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
		slots:       make(chan struct{}, maxConcurrent),
	}
}

// acquire takes a fetch slot; release it with the returned func
func (c *previewClient) acquire(ctx context.Context) (func(), error) {
	select {
	case c.slots <- struct{}{}:
		return func() { <-c.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled while waiting for a fetch slot: %w", ctx.Err())
	}
}

func (c *previewClient) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
	return c.httpClient.Do(req)
}

// readBody reads at most maxBodySize bytes and fails if the body is larger
func (c *previewClient) readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("response body too large (max %d bytes)", c.maxBodySize)
	}
	return data, nil
}
