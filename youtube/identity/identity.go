// Package identity holds the library of simulated client identities
// presented to the provider's player endpoint. Identities are immutable;
// every With* method returns a modified copy, so the canonical values below
// are never mutated in place.
package identity

import (
	"encoding/json"
	"fmt"
)

// Innertube player parameters attached at the payload root.
const (
	// PlayerParams is the restriction-bypass parameter set used by the
	// mobile escalation ladder.
	PlayerParams = "CgIQBg=="
	// PlayerParamsWeb is the alternate parameter set used when re-requesting
	// formats with the web identity.
	PlayerParamsWeb = "8AEB"
)

// Config describes one simulated client: the payload shape sent to the
// player endpoint plus the header overrides presented with it.
type Config struct {
	name               string
	clientFields       map[string]any
	rootFields         map[string]any
	headers            map[string]string
	thirdPartyEmbedURL string
	signatureTimestamp int
	hasTimestamp       bool
}

// Name returns the identity's client name, e.g. "ANDROID".
func (c Config) Name() string {
	return c.name
}

func (c Config) clone() Config {
	out := c
	out.clientFields = make(map[string]any, len(c.clientFields)+1)
	for k, v := range c.clientFields {
		out.clientFields[k] = v
	}
	out.rootFields = make(map[string]any, len(c.rootFields)+1)
	for k, v := range c.rootFields {
		out.rootFields[k] = v
	}
	out.headers = make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out.headers[k] = v
	}
	return out
}

// WithClientField returns a copy with one context.client field overridden.
func (c Config) WithClientField(key string, value any) Config {
	out := c.clone()
	out.clientFields[key] = value
	return out
}

// WithRootField returns a copy with one root-level payload field overridden.
func (c Config) WithRootField(key string, value any) Config {
	out := c.clone()
	out.rootFields[key] = value
	return out
}

// WithThirdPartyEmbedURL returns a copy carrying a third-party embed context.
func (c Config) WithThirdPartyEmbedURL(url string) Config {
	out := c.clone()
	out.thirdPartyEmbedURL = url
	return out
}

// WithVideoID returns a copy with the requested video identifier attached.
func (c Config) WithVideoID(videoID string) Config {
	return c.WithRootField("videoId", videoID)
}

// WithVisitorData returns a copy carrying the visitor token. An empty token
// leaves the identity unchanged.
func (c Config) WithVisitorData(visitorData string) Config {
	if visitorData == "" {
		return c
	}
	return c.WithClientField("visitorData", visitorData)
}

// WithPlaybackSignatureTimestamp returns a copy carrying the obfuscation
// script's signature timestamp in the playback context.
func (c Config) WithPlaybackSignatureTimestamp(ts int) Config {
	out := c.clone()
	out.signatureTimestamp = ts
	out.hasTimestamp = true
	return out
}

// Headers returns the header overrides for this identity. The returned map
// must not be modified.
func (c Config) Headers() map[string]string {
	return c.headers
}

// Payload assembles the JSON body for a player request.
func (c Config) Payload() ([]byte, error) {
	client := make(map[string]any, len(c.clientFields))
	for k, v := range c.clientFields {
		client[k] = v
	}

	context := map[string]any{"client": client}
	if c.thirdPartyEmbedURL != "" {
		context["thirdParty"] = map[string]any{"embedUrl": c.thirdPartyEmbedURL}
	}

	root := map[string]any{"context": context}
	for k, v := range c.rootFields {
		root[k] = v
	}
	if c.hasTimestamp {
		root["playbackContext"] = map[string]any{
			"contentPlaybackContext": map[string]any{
				"signatureTimestamp": c.signatureTimestamp,
			},
		}
	}

	payload, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("marshal player payload for %s: %w", c.name, err)
	}
	return payload, nil
}

const (
	webUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	androidUserAgent = "com.google.android.youtube/21.02.35 (Linux; U; Android 11) gzip"
)

// Canonical identities, in the order the escalation ladder uses them.
var (
	// Web is the general-purpose desktop identity.
	Web = Config{
		name: "WEB",
		clientFields: map[string]any{
			"clientName":    "WEB",
			"clientVersion": "2.20260114.08.00",
		},
		rootFields: map[string]any{},
		headers: map[string]string{
			"User-Agent":               webUserAgent,
			"X-YouTube-Client-Name":    "1",
			"X-YouTube-Client-Version": "2.20260114.08.00",
		},
	}

	// Android mimics the official mobile app. The default escalation ladder
	// starts from a derived variant of this identity (see Default).
	Android = Config{
		name: "ANDROID",
		clientFields: map[string]any{
			"clientName":        "ANDROID",
			"clientVersion":     "21.02.35",
			"androidSdkVersion": 30,
			"osName":            "Android",
			"osVersion":         "11",
			"userAgent":         androidUserAgent,
		},
		rootFields: map[string]any{},
		headers: map[string]string{
			"User-Agent":               androidUserAgent,
			"X-YouTube-Client-Name":    "3",
			"X-YouTube-Client-Version": "21.02.35",
		},
	}

	// TVEmbedded is the television embedded-player identity used to pass
	// age gates.
	TVEmbedded = Config{
		name: "TVHTML5_SIMPLY_EMBEDDED_PLAYER",
		clientFields: map[string]any{
			"clientName":    "TVHTML5_SIMPLY_EMBEDDED_PLAYER",
			"clientVersion": "2.0",
		},
		rootFields: map[string]any{},
		headers: map[string]string{
			"User-Agent":               webUserAgent,
			"X-YouTube-Client-Name":    "85",
			"X-YouTube-Client-Version": "2.0",
		},
		thirdPartyEmbedURL: "https://www.youtube.com",
	}
)

// Default derives the identity the resolution ladder starts from: the mobile
// identity with embed-compatible fields and the restriction-bypass parameter
// attached.
func Default() Config {
	return Android.
		WithClientField("clientScreen", "EMBED").
		WithThirdPartyEmbedURL("https://google.com").
		WithRootField("params", PlayerParams)
}
