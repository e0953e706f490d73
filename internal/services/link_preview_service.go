package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/logging"
	"tcmclinic/internal/models"
	"tcmclinic/internal/security"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	previewUserAgent     = "Mozilla/5.0 (compatible; TCMClinicLinkPreview/1.0)"
	previewMaxBodySize   = 2 * 1024 * 1024
	previewMaxConcurrent = 8
	previewGlobalRate    = 10.0
)

// LinkPreviewService fetches a page and extracts the metadata shown in link cards
type LinkPreviewService struct {
	client   *previewClient
	robots   *robotsChecker
	limiter  *hostLimiter
	previews *cache.Cache
	validate func(ctx context.Context, rawURL string) (*url.URL, error)
}

// NewLinkPreviewService creates a preview service that only reaches public hosts
func NewLinkPreviewService() *LinkPreviewService {
	return newLinkPreviewService(true)
}

func newLinkPreviewService(publicOnly bool) *LinkPreviewService {
	client := newPreviewClient(previewUserAgent, previewMaxConcurrent, previewMaxBodySize, publicOnly)

	validate := security.ValidatePublicURL
	if !publicOnly {
		validate = parseHTTPURL
	}

	return &LinkPreviewService{
		client:   client,
		robots:   newRobotsChecker(previewUserAgent, client.httpClient),
		limiter:  newHostLimiter(previewGlobalRate),
		previews: cache.New(time.Hour, 10*time.Minute),
		validate: validate,
	}
}

// Preview returns the title, description, image and favicon of rawURL.
// Invalid or internal URLs are validation errors; fetch failures are plain errors.
func (s *LinkPreviewService) Preview(ctx context.Context, rawURL string) (*models.LinkPreview, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperr.Validation("Invalid URL provided")
	}

	pageURL, err := s.validate(ctx, rawURL)
	if err != nil {
		return nil, apperr.Validation("Invalid URL: %v", err)
	}

	key := pageURL.String()
	if cached, found := s.previews.Get(key); found {
		preview := *cached.(*models.LinkPreview)
		return &preview, nil
	}

	allowed, delay := s.robots.canFetch(ctx, pageURL)
	if !allowed {
		return nil, fmt.Errorf("access blocked by robots.txt for %s", pageURL.Host)
	}
	if err := s.limiter.wait(ctx, pageURL.Host, delay); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	release, err := s.client.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := s.client.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := s.client.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	body = toUTF8(body, contentType)

	// the final URL after redirects is the base for relative links
	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	meta := extractPageMeta(body)
	if meta.title == "" || meta.description == "" {
		fillFromTrafilatura(&meta, body, base)
	}

	preview := &models.LinkPreview{
		URL:         rawURL,
		Title:       meta.title,
		Description: meta.description,
		Image:       resolveAgainst(base, meta.image),
		Favicon:     resolveAgainst(base, meta.favicon),
		Domain:      pageURL.Hostname(),
	}
	if preview.Image == "" {
		preview.Image = preview.Favicon
	}
	if preview.Title == "" {
		preview.Title = pageURL.Hostname()
	}

	s.previews.Set(key, preview, cache.DefaultExpiration)
	logging.L().Debugf("🔗 Link preview for %s: %q", pageURL.Host, preview.Title)

	out := *preview
	return &out, nil
}

type pageMeta struct {
	title       string
	description string
	image       string
	favicon     string
}

// extractPageMeta walks the document for <title>, description/og/twitter meta
// tags and the icon link. The first match of each kind wins. A plain description
// beats og:description, og:image beats twitter:image.
func extractPageMeta(body []byte) pageMeta {
	var meta pageMeta
	var ogDescription, twitterImage string

	z := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if meta.description == "" {
				meta.description = ogDescription
			}
			if meta.image == "" {
				meta.image = twitterImage
			}
			return meta

		case html.TextToken:
			if inTitle && meta.title == "" {
				meta.title = strings.TrimSpace(string(z.Text()))
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = false
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag == "title" && tt == html.StartTagToken {
				inTitle = true
				continue
			}
			if !hasAttr || (tag != "meta" && tag != "link") {
				continue
			}

			attrs := readAttrs(z)
			if tag == "link" {
				if meta.favicon == "" && isIconRel(attrs["rel"]) {
					meta.favicon = strings.TrimSpace(attrs["href"])
				}
				continue
			}

			key := strings.ToLower(attrs["property"])
			if key == "" {
				key = strings.ToLower(attrs["name"])
			}
			content := strings.TrimSpace(attrs["content"])
			if content == "" {
				continue
			}

			switch key {
			case "description":
				if meta.description == "" {
					meta.description = content
				}
			case "og:description":
				if ogDescription == "" {
					ogDescription = content
				}
			case "og:image", "og:image:url":
				if meta.image == "" {
					meta.image = content
				}
			case "twitter:image", "twitter:image:src":
				if twitterImage == "" {
					twitterImage = content
				}
			}
		}
	}
}

func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		key, val, more := z.TagAttr()
		attrs[strings.ToLower(string(key))] = string(val)
		if !more {
			return attrs
		}
	}
}

func isIconRel(rel string) bool {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if token == "icon" {
			return true
		}
	}
	return false
}

// fillFromTrafilatura uses the extractor's metadata for fields the tags did not provide
func fillFromTrafilatura(meta *pageMeta, body []byte, base *url.URL) {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL: base,
	})
	if err != nil || result == nil {
		return
	}
	if meta.title == "" {
		meta.title = strings.TrimSpace(result.Metadata.Title)
	}
	if meta.description == "" {
		meta.description = strings.TrimSpace(result.Metadata.Description)
	}
}

func resolveAgainst(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func isHTMLContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// toUTF8 converts the page using the declared or sniffed charset
func toUTF8(body []byte, contentType string) []byte {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return converted
}

func parseHTTPURL(_ context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("only absolute http and https URLs are allowed")
	}
	return u, nil
}
