package holidays

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appLog "chronosync/internal/log"
	"chronosync/internal/model"
)

// ErrNoAPIKey is returned before any request when the client has no key.
var ErrNoAPIKey = errors.New("holidays: api key is not configured")

// Query holds the optional filters of the holidays endpoint.
type Query struct {
	Month    int
	Day      int
	Type     string // "national", "religious", ...
	Location string // e.g. "us-ny"
}

// Client talks to a Calendarific-compatible REST API. Successful responses
// are kept on disk and served again when the provider is unreachable or
// answers with a non-OK status.
type Client struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	cacheDir string
}

// cacheEntry holds HTTP cache metadata for a single request.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewClient creates a holidays API client. An empty cacheDir disables the
// disk cache; a non-positive timeout falls back to 15s.
func NewClient(baseURL, apiKey, cacheDir string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		apiKey:   apiKey,
		cacheDir: cacheDir,
	}
}

// Holidays returns all holidays of a country for a year.
func (c *Client) Holidays(ctx context.Context, country string, year int) ([]Holiday, error) {
	return c.HolidaysQuery(ctx, country, year, Query{})
}

func (c *Client) HolidaysQuery(ctx context.Context, country string, year int, q Query) ([]Holiday, error) {
	if country == "" {
		return nil, errors.New("holidays: country is empty")
	}
	params := url.Values{}
	params.Set("country", country)
	params.Set("year", strconv.Itoa(year))
	if q.Month > 0 {
		params.Set("month", strconv.Itoa(q.Month))
	}
	if q.Day > 0 {
		params.Set("day", strconv.Itoa(q.Day))
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}

	body, err := c.get(ctx, "holidays", params)
	if err != nil {
		return nil, err
	}
	hols, err := decodeHolidays(body)
	if err != nil {
		return nil, fmt.Errorf("holidays %s/%d: %w", country, year, err)
	}
	return hols, nil
}

// Countries returns the provider's supported countries.
func (c *Client) Countries(ctx context.Context) ([]model.Country, error) {
	body, err := c.get(ctx, "countries", url.Values{})
	if err != nil {
		return nil, err
	}
	countries, err := decodeCountries(body)
	if err != nil {
		return nil, fmt.Errorf("countries: %w", err)
	}
	return countries, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	// The cache key never includes the api key.
	publicURL := c.baseURL + endpoint + "?" + params.Encode()
	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	cachePath := c.cachePathForURL(publicURL)
	var (
		meta       cacheEntry
		cachedBody []byte
	)
	if cachePath != "" {
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("holiday cache dir create failed", err, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = loadCacheBody(cachePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("holiday api request", "url", publicURL)

	resp, err := c.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("holiday api network error, using cached body", err, "url", publicURL)
			return cachedBody, nil
		}
		return nil, redactError(err, c.apiKey)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          publicURL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("holiday cache save failed", err, "url", publicURL)
			}
		}
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		return cachedBody, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("holiday api non-OK, using cached body", errors.New(resp.Status), "url", publicURL, "status", resp.StatusCode)
			return cachedBody, nil
		}
		return nil, fmt.Errorf("holiday api %s: %s", endpoint, resp.Status)
	}
}

func (c *Client) cachePathForURL(u string) string {
	if c.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactError strips the api key from transport errors, which embed the URL.
func redactError(err error, key string) error {
	if key == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), key, "REDACTED")
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}
