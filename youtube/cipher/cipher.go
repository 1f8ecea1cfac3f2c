// Package cipher is the default signature-resolution service: given an
// obfuscation script reference it reports the script's signature timestamp
// and turns a format's raw URL into a signed, playable one.
//
// Deciphering is best-effort. A regex fast path recognizes the common
// reverse/splice/swap transform chains without executing any script; the
// otto VM is the fallback for signatures, and goja executes the heavier
// n-parameter transform.
package cipher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"

	"github.com/ytget/ytaudio/pkg/client"
	"github.com/ytget/ytaudio/types"
)

const (
	userAgentValue = "Mozilla/5.0"

	decipherFuncName = "decipher"
	ncodeFuncName    = "ncode"

	playerJSTTL = 10 * time.Minute
)

var signatureTimestampRe = regexp.MustCompile(`(?:signatureTimestamp|sts)["']?\s*[:=]\s*(\d+)`)

// Resolver fetches and caches obfuscation scripts and applies their
// transforms to format URLs.
type Resolver struct {
	HTTPClient client.Doer

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	body  []byte
	expAt time.Time
}

// New creates a Resolver using the given HTTP client. A nil httpClient gets
// the shared tuned transport with its transient-failure retry policy.
func New(httpClient client.Doer) *Resolver {
	if httpClient == nil {
		httpClient = client.New()
	}
	return &Resolver{
		HTTPClient: httpClient,
		cache:      make(map[string]cacheEntry),
	}
}

// ScriptTimestamp extracts the signature timestamp from the obfuscation
// script, fetching it through the script body cache.
func (r *Resolver) ScriptTimestamp(ctx context.Context, playerScriptURL string) (int, error) {
	body, err := r.playerJS(ctx, playerScriptURL)
	if err != nil {
		return 0, err
	}
	m := signatureTimestampRe.FindSubmatch(body)
	if len(m) != 2 {
		return 0, fmt.Errorf("no signature timestamp in player script %s", playerScriptURL)
	}
	ts, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("parse signature timestamp: %w", err)
	}
	return ts, nil
}

// ResolveFormatURL builds the final playable URL for a format. A direct URL
// only needs the n-parameter transform; a signature cipher additionally
// needs its signature deciphered and re-attached.
func (r *Resolver) ResolveFormatURL(ctx context.Context, playerScriptURL string, f types.Format) (string, error) {
	if strings.TrimSpace(f.URL) != "" {
		return r.finalizeURL(ctx, playerScriptURL, f.URL, "", "")
	}

	if strings.TrimSpace(f.SignatureCipher) == "" {
		return "", fmt.Errorf("format %d has no url or signature cipher", f.Itag)
	}

	parsed, err := url.ParseQuery(f.SignatureCipher)
	if err != nil {
		return "", fmt.Errorf("parse signature cipher: %w", err)
	}

	sig := parsed.Get("s")
	cipherURL := parsed.Get("url")
	if sig == "" || cipherURL == "" {
		return "", fmt.Errorf("signature cipher missing signature or url")
	}
	sigParam := parsed.Get("sp")
	if sigParam == "" {
		sigParam = "signature"
	}

	deciphered, err := r.Decipher(ctx, playerScriptURL, sig)
	if err != nil {
		return "", err
	}
	return r.finalizeURL(ctx, playerScriptURL, cipherURL, sigParam, deciphered)
}

// finalizeURL attaches the deciphered signature (when given), applies the
// n-parameter transform, and sets the rate/redirect hints.
func (r *Resolver) finalizeURL(ctx context.Context, playerScriptURL, rawURL, sigParam, sig string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse format url: %w", err)
	}

	q := u.Query()
	if sigParam != "" {
		q.Set(sigParam, sig)
	}
	if nval := q.Get("n"); nval != "" {
		if nout, err := r.DecipherN(ctx, playerScriptURL, nval); err == nil && nout != "" {
			q.Set("n", nout)
		}
	}
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	if q.Get("alr") == "" {
		q.Set("alr", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Decipher decrypts a signature, preferring the regex fast path over script
// execution.
func (r *Resolver) Decipher(ctx context.Context, playerScriptURL, signature string) (string, error) {
	body, err := r.playerJS(ctx, playerScriptURL)
	if err != nil {
		return "", err
	}

	if out, ok := tryRegexDecipher(string(body), signature); ok {
		return out, nil
	}

	vm := otto.New()
	if _, err := vm.Run(string(body)); err != nil {
		return "", fmt.Errorf("run player script: %w", err)
	}
	value, err := vm.Call(decipherFuncName, nil, signature)
	if err != nil {
		return "", fmt.Errorf("call decipher function: %w", err)
	}
	result, err := value.ToString()
	if err != nil {
		return "", fmt.Errorf("decipher did not return a string: %w", err)
	}
	return result, nil
}

// DecipherN decodes the throttling n-parameter. The original value is
// returned unchanged when the script exposes no transform.
func (r *Resolver) DecipherN(ctx context.Context, playerScriptURL, nval string) (string, error) {
	body, err := r.playerJS(ctx, playerScriptURL)
	if err != nil {
		return "", err
	}

	vm := goja.New()
	if _, err := vm.RunString(string(body)); err != nil {
		return "", fmt.Errorf("run player script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get(ncodeFuncName))
	if !ok {
		return nval, nil
	}
	value, err := fn(goja.Undefined(), vm.ToValue(nval))
	if err != nil {
		return "", fmt.Errorf("call ncode function: %w", err)
	}
	return value.String(), nil
}

// playerJS fetches a script body through the TTL cache.
func (r *Resolver) playerJS(ctx context.Context, playerScriptURL string) ([]byte, error) {
	r.mu.Lock()
	entry, ok := r.cache[playerScriptURL]
	if ok && time.Now().Before(entry.expAt) {
		body := entry.body
		r.mu.Unlock()
		return body, nil
	}
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playerScriptURL, nil)
	if err != nil {
		return nil, fmt.Errorf("player script request: %w", err)
	}
	req.Header.Set("User-Agent", userAgentValue)

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download player script: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player script fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read player script: %w", err)
	}

	r.mu.Lock()
	r.cache[playerScriptURL] = cacheEntry{body: body, expAt: time.Now().Add(playerJSTTL)}
	r.mu.Unlock()
	return body, nil
}
