// Package innertube executes requests against the provider's internal
// player API and embed pages. It is a transport layer only: callers decide
// which client identity to present and interpret the returned documents.
package innertube

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
	"github.com/ytget/ytaudio/internal/log"
	"github.com/ytget/ytaudio/pkg/client"
	"github.com/ytget/ytaudio/youtube/identity"
)

const (
	ytBase    = "https://www.youtube.com"
	playerURL = ytBase + "/youtubei/v1/player"

	headerContentTypeJSON = "application/json"
	embedUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

	visitorDataMaxAge = 10 * time.Hour
)

// Client talks to the provider's internal API.
type Client struct {
	HTTPClient client.Doer

	visitor struct {
		mu      sync.Mutex
		value   string
		updated time.Time
	}
	log zerolog.Logger
}

// New creates a new innertube client. A nil httpClient gets the shared tuned
// transport with its transient-failure retry policy.
func New(httpClient client.Doer) *Client {
	if httpClient == nil {
		httpClient = client.New()
	}
	return &Client{
		HTTPClient: httpClient,
		log:        log.WithComponent("innertube"),
	}
}

// Player posts the payload built from the given identity to the player
// endpoint and returns the decompressed response body. Non-success status
// codes are surfaced as errs.StatusError so retry sites can recognize the
// transient rejection classes.
func (c *Client) Player(ctx context.Context, cfg identity.Config) ([]byte, error) {
	payload, err := cfg.Payload()
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("client", cfg.Name()).RawJSON("payload", payload).Msg("loading track info")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", headerContentTypeJSON)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Referer", ytBase+"/")
	req.Header.Set("Origin", ytBase)
	for k, v := range cfg.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.StatusError{Code: resp.StatusCode, Context: "video page response"}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("player response: %w", err)
	}
	return body, nil
}

// EmbedPage fetches the embed-style page for a video. The caller extracts
// the obfuscation script reference from the returned HTML.
func (c *Client) EmbedPage(ctx context.Context, videoID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ytBase+"/embed/"+videoID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", embedUserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed page request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.StatusError{Code: resp.StatusCode, Context: "embed video page"}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("embed page response: %w", err)
	}
	return body, nil
}

// VisitorData returns the visitor token attached to player payloads,
// refreshing it from the provider's main page when older than ten hours.
func (c *Client) VisitorData(ctx context.Context) (string, error) {
	c.visitor.mu.Lock()
	defer c.visitor.mu.Unlock()

	if c.visitor.value != "" && time.Since(c.visitor.updated) <= visitorDataMaxAge {
		return c.visitor.value, nil
	}

	value, err := c.fetchVisitorData(ctx)
	if err != nil {
		return c.visitor.value, err
	}
	c.visitor.value = value
	c.visitor.updated = time.Now()
	return value, nil
}

func (c *Client) fetchVisitorData(ctx context.Context) (string, error) {
	const marker = "ytcfg.set("

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ytBase, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", embedUserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("visitor data request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &errs.StatusError{Code: resp.StatusCode, Context: "visitor data page"}
	}

	body, err := readBody(resp)
	if err != nil {
		return "", err
	}

	_, after, found := strings.Cut(string(body), marker)
	if !found {
		return "", errs.NewProtocolError("visitor data marker not found", snippet(body), nil)
	}

	visitor := gjson.Get(after, "INNERTUBE_CONTEXT.client.visitorData").String()
	if visitor == "" {
		return "", errs.NewProtocolError("visitor data missing from page config", snippet(body), nil)
	}
	return strings.ReplaceAll(visitor, "%3D", "="), nil
}

// readBody drains a response, undoing the content encoding when needed.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

func snippet(body []byte) string {
	const max = 2048
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
