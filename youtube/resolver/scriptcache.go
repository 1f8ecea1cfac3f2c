package resolver

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
)

// scriptTTL bounds how long a cached obfuscation script reference is trusted.
const scriptTTL = 600_000 * time.Millisecond

// CachedPlayerScript is one immutable observation of the provider's
// obfuscation script reference.
type CachedPlayerScript struct {
	URL       string
	FetchedAt int64 // unix milliseconds
}

// embedPageFetcher is the slice of the innertube client the cache needs.
type embedPageFetcher interface {
	EmbedPage(ctx context.Context, videoID string) ([]byte, error)
}

// ScriptCache holds the latest known obfuscation script reference. The value
// is replaced wholesale: concurrent refreshes race and the last completed
// fetch wins, which is accepted in place of once-only fetching.
type ScriptCache struct {
	pages  embedPageFetcher
	cached atomic.Pointer[CachedPlayerScript]
	now    func() time.Time
}

// NewScriptCache builds a cache refreshing through the given page fetcher.
func NewScriptCache(pages embedPageFetcher) *ScriptCache {
	return &ScriptCache{pages: pages, now: time.Now}
}

// EnsureFresh returns the cached script reference when it is younger than
// the TTL and refreshes it from the embed page of the given video otherwise.
func (c *ScriptCache) EnsureFresh(ctx context.Context, videoID string) (string, error) {
	nowMillis := c.now().UnixMilli()

	if cached := c.cached.Load(); cached != nil && nowMillis-cached.FetchedAt < scriptTTL.Milliseconds() {
		return cached.URL, nil
	}
	return c.refresh(ctx, videoID, nowMillis)
}

// Store records a script reference discovered in a player response.
func (c *ScriptCache) Store(scriptURL string) {
	c.cached.Store(&CachedPlayerScript{URL: scriptURL, FetchedAt: c.now().UnixMilli()})
}

// Peek returns the current cache entry without freshness checks.
func (c *ScriptCache) Peek() *CachedPlayerScript {
	return c.cached.Load()
}

func (c *ScriptCache) refresh(ctx context.Context, videoID string, nowMillis int64) (string, error) {
	body, err := c.pages.EmbedPage(ctx, videoID)
	if err != nil {
		return "", err
	}

	scriptURL, ok := extractScriptURL(string(body))
	if !ok {
		return "", errs.NewProtocolError("no jsUrl found in embed page", string(body), nil)
	}

	c.cached.Store(&CachedPlayerScript{URL: scriptURL, FetchedAt: nowMillis})
	return scriptURL, nil
}

const (
	scriptMarker    = `"jsUrl":"`
	scriptURLPrefix = "https://www.youtube.com"
)

// extractScriptURL pulls the script reference out of an embed page body via
// its fixed textual marker and undoes the JSON string escaping.
func extractScriptURL(page string) (string, bool) {
	_, after, found := strings.Cut(page, scriptMarker)
	if !found {
		return "", false
	}
	end := strings.IndexByte(after, '"')
	if end < 0 {
		return "", false
	}

	// Round-trip through the JSON parser to unescape the URL.
	raw := after[:end]
	url := gjson.Parse(`{"url":"` + raw + `"}`).Get("url").String()
	if url == "" {
		return "", false
	}
	if strings.HasPrefix(url, "/") {
		url = scriptURLPrefix + url
	}
	return url, true
}
