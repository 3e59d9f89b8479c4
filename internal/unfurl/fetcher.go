package unfurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/pkg/models"
)

const defaultOEmbedBase = "https://www.youtube.com/oembed"

// urlChecker is what the fetcher needs from the SSRF guard.
type urlChecker interface {
	CheckURL(ctx context.Context, u *url.URL) error
}

// Fetcher turns a URL into preview metadata. All outbound requests run
// through the guard, redirects are followed manually with a per-hop
// re-check, and any non-policy failure degrades to a fallback result
// instead of an error.
type Fetcher struct {
	cfg        config.UnfurlConfig
	guard      urlChecker
	client     *http.Client
	oembedBase string
	logger     *logrus.Logger
}

func NewFetcher(cfg config.UnfurlConfig, guard urlChecker, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		cfg:   cfg,
		guard: guard,
		client: &http.Client{
			// Redirects are followed manually so each hop passes the guard.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		oembedBase: defaultOEmbedBase,
		logger:     logger,
	}
}

// ParseURL validates the syntactic shape shared by ingestion and
// unfurling: absolute, http(s), host present, no credentials.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable url", ErrUnsafeURL)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials in url", ErrUnsafeURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}
	return u, nil
}

// Unfurl fetches preview metadata for a URL. Policy violations return
// ErrUnsafeURL; everything else that goes wrong returns a fallback
// result with IsFallback set.
func (f *Fetcher) Unfurl(ctx context.Context, rawURL string) (*models.UnfurlResult, error) {
	result, err := f.unfurl(ctx, rawURL)
	switch {
	case err != nil:
		unfurlOutcomesTotal.WithLabelValues("unsafe").Inc()
	case result.IsFallback:
		unfurlOutcomesTotal.WithLabelValues("upstream_error").Inc()
	default:
		unfurlOutcomesTotal.WithLabelValues("ok").Inc()
	}
	return result, err
}

func (f *Fetcher) unfurl(ctx context.Context, rawURL string) (*models.UnfurlResult, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := f.guard.CheckURL(ctx, u); err != nil {
		if errors.Is(err, ErrUnsafeURL) {
			return nil, err
		}
		f.logger.WithError(err).WithField("host", u.Hostname()).Debug("Unfurl resolution failed")
		return f.fallback(u), nil
	}

	contentType := DetectContentType(u)

	if contentType == models.ContentTypeYouTube {
		if result, ok := f.unfurlYouTube(ctx, u); ok {
			return result, nil
		}
	}

	meta, err := f.fetchPage(ctx, u)
	if err != nil {
		if errors.Is(err, ErrUnsafeURL) {
			return nil, err
		}
		f.logger.WithError(err).WithField("host", u.Hostname()).Debug("Unfurl fell back")
		return f.fallback(u), nil
	}

	result := &models.UnfurlResult{
		URL:         u.String(),
		Title:       meta.bestTitle(),
		Description: meta.bestDescription(),
		Thumbnail:   meta.bestImage(u),
		SiteName:    meta.siteName(),
		ContentType: contentType,
	}
	if result.Title == "" {
		result.Title = u.Hostname()
	}
	if result.SiteName == "" {
		result.SiteName = u.Hostname()
	}
	if contentType == models.ContentTypeYouTube {
		result.VideoID = YouTubeVideoID(u)
	}
	return result, nil
}

// fallback is the preview of last resort: hostname as title, no body
// metadata. Platform types stay hostname-derived facts; unknown hosts
// become generic because "article" was never confirmed.
func (f *Fetcher) fallback(u *url.URL) *models.UnfurlResult {
	contentType := DetectContentType(u)
	if contentType == models.ContentTypeArticle {
		contentType = models.ContentTypeGeneric
	}

	result := &models.UnfurlResult{
		URL:         u.String(),
		Title:       u.Hostname(),
		SiteName:    u.Hostname(),
		ContentType: contentType,
		IsFallback:  true,
	}
	if contentType == models.ContentTypeYouTube {
		result.VideoID = YouTubeVideoID(u)
	}
	return result
}

// fetchPage GETs a page with the generic timeout, following at most
// MaxRedirects redirects, each hop re-checked against the guard. Only
// text/html responses are read, capped at MaxBodyBytes.
func (f *Fetcher) fetchPage(ctx context.Context, u *url.URL) (*pageMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	current := u
	for hop := 0; ; hop++ {
		if err := f.guard.CheckURL(ctx, current); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			resp.Body.Close()

			if location == "" {
				return nil, fmt.Errorf("redirect without location from %s", current.Hostname())
			}
			if hop >= f.cfg.MaxRedirects {
				return nil, fmt.Errorf("more than %d redirects", f.cfg.MaxRedirects)
			}
			next, err := current.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("bad redirect location: %w", err)
			}
			current = next
			continue
		}

		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d from %s", resp.StatusCode, current.Hostname())
		}
		if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "text/html") {
			return nil, fmt.Errorf("unsupported content type %q", ct)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
		if err != nil {
			return nil, err
		}

		return extractMeta(body), nil
	}
}

// unfurlYouTube asks the oEmbed endpoint for title and author; the
// thumbnail comes from the stable ID-derived pattern. Any failure makes
// the caller fall through to a generic fetch.
func (f *Fetcher) unfurlYouTube(ctx context.Context, u *url.URL) (*models.UnfurlResult, bool) {
	videoID := YouTubeVideoID(u)
	if videoID == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.OEmbedTimeout)
	defer cancel()

	endpoint := f.oembedBase + "?format=json&url=" + url.QueryEscape(u.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WithError(err).Debug("YouTube oEmbed failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var payload struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err != nil {
		return nil, false
	}
	if payload.Title == "" {
		return nil, false
	}

	return &models.UnfurlResult{
		URL:         u.String(),
		Title:       cleanText(payload.Title),
		Description: cleanText(payload.AuthorName),
		Thumbnail:   fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID),
		SiteName:    "YouTube",
		ContentType: models.ContentTypeYouTube,
		VideoID:     videoID,
	}, true
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// DetectContentType classifies a URL by hostname alone.
func DetectContentType(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return models.ContentTypeYouTube
	case host == "twitter.com" || strings.HasSuffix(host, ".twitter.com") ||
		host == "x.com" || strings.HasSuffix(host, ".x.com"):
		return models.ContentTypeTweet
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return models.ContentTypeInstagram
	default:
		return models.ContentTypeArticle
	}
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeVideoID pulls the 11-character video ID out of the URL shapes
// YouTube serves: youtu.be/<id>, watch?v=<id>, and the /shorts/,
// /embed/, /live/, /v/ path forms. Returns "" when no ID is present.
func YouTubeVideoID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var candidate string
	switch {
	case host == "youtu.be":
		candidate = firstPathSegment(u.Path)
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				candidate = firstPathSegment(strings.TrimPrefix(u.Path, prefix))
				break
			}
		}
	}

	if youtubeIDPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

func firstPathSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
