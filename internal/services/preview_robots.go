package services

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const (
	defaultCrawlDelay = 500 * time.Millisecond
	maxCrawlDelay     = 10 * time.Second
)

// robotsChecker fetches and caches robots.txt per origin
type robotsChecker struct {
	cache     *cache.Cache
	userAgent string
	client    *http.Client
}

func newRobotsChecker(userAgent string, client *http.Client) *robotsChecker {
	return &robotsChecker{
		cache:     cache.New(24*time.Hour, time.Hour),
		userAgent: userAgent,
		client:    client,
	}
}

// canFetch reports whether u may be fetched and the crawl delay to honour.
// A missing or unreadable robots.txt allows everything.
func (rc *robotsChecker) canFetch(ctx context.Context, u *url.URL) (bool, time.Duration) {
	origin := u.Scheme + "://" + u.Host

	robots, ok := rc.lookup(ctx, origin)
	if !ok {
		return true, defaultCrawlDelay
	}

	group := robots.FindGroup(rc.userAgent)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), crawlDelay(group)
}

func (rc *robotsChecker) lookup(ctx context.Context, origin string) (*robotstxt.RobotsData, bool) {
	if cached, found := rc.cache.Get(origin); found {
		robots, ok := cached.(*robotstxt.RobotsData)
		return robots, ok
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, false
	}

	status := resp.StatusCode
	if status >= http.StatusInternalServerError {
		// treat a broken robots.txt like a missing one
		status = http.StatusNotFound
	}
	robots, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, false
	}
	rc.cache.Set(origin, robots, cache.DefaultExpiration)
	return robots, true
}

func crawlDelay(group *robotstxt.Group) time.Duration {
	if group == nil || group.CrawlDelay <= 0 {
		return defaultCrawlDelay
	}
	if group.CrawlDelay > maxCrawlDelay {
		return maxCrawlDelay
	}
	return group.CrawlDelay
}
