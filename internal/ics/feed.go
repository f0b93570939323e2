package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "chronosync/internal/log"
)

// maxFeedBytes bounds a remote feed download.
const maxFeedBytes = 8 << 20

// FeedFetcher downloads iCalendar feeds for one-off imports into a custom
// calendar.
type FeedFetcher struct {
	client *http.Client
}

func NewFeedFetcher(timeout time.Duration) *FeedFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeedFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the feed body. Only http and https URLs are accepted;
// webcal:// is rewritten to https://.
func (f *FeedFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	if u.Scheme == "webcal" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("feed url: unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	appLog.Info("ics feed fetch start", "url", redactURL(u))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.New("ics feed fetch failed: " + redactURL(u))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics feed %s: %s", redactURL(u), resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("ics feed %s: larger than %d bytes", redactURL(u), maxFeedBytes)
	}
	appLog.Info("ics feed fetch success", "url", redactURL(u), "bytes", len(body))
	return body, nil
}

// redactURL keeps the scheme and host only; feed paths and queries often
// carry private tokens.
func redactURL(u *url.URL) string {
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
