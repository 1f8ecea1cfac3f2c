package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
	"github.com/ytget/ytaudio/youtube/identity"
	"github.com/ytget/ytaudio/youtube/innertube"
)

type fakeTimestamper struct{}

func (fakeTimestamper) ScriptTimestamp(ctx context.Context, playerScriptURL string) (int, error) {
	return 19834, nil
}

// mockProviderTransport simulates the provider's endpoints. Player responses
// are chosen per request by the player callback, which receives the parsed
// request payload.
type mockProviderTransport struct {
	t      *testing.T
	player func(call int, payload gjson.Result) (int, string)

	playerPayloads []gjson.Result
}

func (m *mockProviderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case req.Method == http.MethodPost && req.URL.Path == "/youtubei/v1/player":
		body, err := io.ReadAll(req.Body)
		if err != nil {
			m.t.Fatalf("read player payload: %v", err)
		}
		payload := gjson.ParseBytes(body)
		m.playerPayloads = append(m.playerPayloads, payload)
		code, resp := m.player(len(m.playerPayloads), payload)
		return textResponse(code, resp), nil

	case strings.HasPrefix(req.URL.Path, "/embed/"):
		return textResponse(http.StatusOK, embedPageBody), nil

	case req.URL.Path == "" || req.URL.Path == "/":
		page := `<html>ytcfg.set({"INNERTUBE_CONTEXT":{"client":{"visitorData":"CgtWaXNpdG9yVG9r"}}});</html>`
		return textResponse(http.StatusOK, page), nil
	}

	m.t.Fatalf("unexpected request: %s %s", req.Method, req.URL)
	return nil, nil
}

func textResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestResolver(t *testing.T, player func(call int, payload gjson.Result) (int, string)) (*Resolver, *mockProviderTransport) {
	t.Helper()
	transport := &mockProviderTransport{t: t, player: player}
	it := innertube.New(&http.Client{Transport: transport})
	return New(it, fakeTimestamper{}), transport
}

func okResponse(videoID string) string {
	return `{"playabilityStatus":{"status":"OK"},
		"videoDetails":{"videoId":"` + videoID + `","isLive":false},
		"streamingData":{"adaptiveFormats":[]}}`
}

func clientName(payload gjson.Result) string {
	return payload.Get("context.client.clientName").String()
}

func TestResolvePlayableVideo(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, okResponse("dQw4w9WgXcQ")
	})

	meta, err := r.Resolve(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("VideoID = %q", meta.VideoID)
	}
	if meta.PlayerScriptURL != "https://www.youtube.com/s/player/4fcd6e4a/player_ias.vflset/en_US/base.js" {
		t.Errorf("PlayerScriptURL = %q", meta.PlayerScriptURL)
	}
	if meta.IsLive {
		t.Error("IsLive must be false")
	}

	if len(transport.playerPayloads) != 1 {
		t.Fatalf("player called %d times, want 1", len(transport.playerPayloads))
	}
	payload := transport.playerPayloads[0]
	if got := clientName(payload); got != "ANDROID" {
		t.Errorf("first attempt client = %q, want ANDROID", got)
	}
	if got := payload.Get("context.client.clientScreen").String(); got != "EMBED" {
		t.Errorf("clientScreen = %q", got)
	}
	if got := payload.Get("context.thirdParty.embedUrl").String(); got != "https://google.com" {
		t.Errorf("embedUrl = %q", got)
	}
	if got := payload.Get("params").String(); got != identity.PlayerParams {
		t.Errorf("params = %q", got)
	}
	if !payload.Get("racyCheckOk").Bool() || !payload.Get("contentCheckOk").Bool() {
		t.Error("content check acknowledgements missing from payload")
	}
	if got := payload.Get("playbackContext.contentPlaybackContext.signatureTimestamp").Int(); got != 19834 {
		t.Errorf("signatureTimestamp = %d", got)
	}
}

func TestResolveMissingVideoReturnsNil(t *testing.T) {
	r, _ := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, `{"playabilityStatus":{"status":"ERROR","reason":"This video is unavailable"}}`
	})

	meta, err := r.Resolve(context.Background(), "gone00000ab")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta != nil {
		t.Errorf("expected nil metadata, got %+v", meta)
	}
}

func TestResolveEscalatesLoginWall(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		if clientName(payload) == "TVHTML5_SIMPLY_EMBEDDED_PLAYER" {
			return http.StatusOK, okResponse("ageGated0ab")
		}
		return http.StatusOK, `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in to confirm your age"},
			"videoDetails":{"videoId":"ageGated0ab"}}`
	})

	meta, err := r.Resolve(context.Background(), "ageGated0ab")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata after escalation")
	}

	if len(transport.playerPayloads) != 2 {
		t.Fatalf("player called %d times, want 2", len(transport.playerPayloads))
	}
	if got := clientName(transport.playerPayloads[1]); got != "TVHTML5_SIMPLY_EMBEDDED_PLAYER" {
		t.Errorf("escalated client = %q", got)
	}
}

func TestResolveAgeGateTerminalAfterEscalation(t *testing.T) {
	r, _ := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, `{"playabilityStatus":{"status":"LOGIN_REQUIRED",
			"reason":"This video may be inappropriate for some users."},
			"videoDetails":{"videoId":"ageGated0ab"}}`
	})

	_, err := r.Resolve(context.Background(), "ageGated0ab")
	if !errors.Is(err, errs.ErrAgeRestricted) {
		t.Fatalf("expected age restriction error, got %v", err)
	}
}

func TestResolveUnwrapsPremiereTrailer(t *testing.T) {
	trailer := `{"playabilityStatus":{"status":"OK"},
		"videoDetails":{"videoId":"premiere0ab","isLive":false},
		"streamingData":{"adaptiveFormats":[]}}`

	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		if clientName(payload) == "WEB" {
			return http.StatusOK, `{"playabilityStatus":{"status":"LIVE_STREAM_OFFLINE",
				"errorScreen":{"ypcTrailerRenderer":{"unserializedPlayerResponse":` + trailer + `}}}}`
		}
		return http.StatusOK, `{"playabilityStatus":{"status":"LIVE_STREAM_OFFLINE",
			"errorScreen":{"ypcTrailerRenderer":{}}}}`
	})

	meta, err := r.Resolve(context.Background(), "premiere0ab")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta == nil {
		t.Fatal("expected trailer metadata")
	}
	if got := meta.Response().Get("videoDetails.videoId").String(); got != "premiere0ab" {
		t.Errorf("trailer videoId = %q", got)
	}

	if len(transport.playerPayloads) != 2 {
		t.Fatalf("player called %d times, want 2", len(transport.playerPayloads))
	}
	if got := clientName(transport.playerPayloads[1]); got != "WEB" {
		t.Errorf("trailer fetch client = %q, want WEB", got)
	}
}

func TestResolveOfflineStreamWithoutTrailerFails(t *testing.T) {
	r, _ := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, `{"playabilityStatus":{"status":"LIVE_STREAM_OFFLINE",
			"reason":"This live event will begin in a few moments"}}`
	})

	_, err := r.Resolve(context.Background(), "upcoming0ab")
	ue, ok := errs.IsUserError(err)
	if !ok {
		t.Fatalf("expected user error, got %v", err)
	}
	if !strings.Contains(ue.Reason, "begin in a few moments") {
		t.Errorf("reason = %q", ue.Reason)
	}
}

func TestResolveEscalatesNonEmbeddable(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		if call == 1 {
			return http.StatusOK, `{"playabilityStatus":{"status":"UNPLAYABLE",
				"reason":"Playback on other websites has been disabled by the video owner"}}`
		}
		return http.StatusOK, okResponse("noEmbed00ab")
	})

	meta, err := r.Resolve(context.Background(), "noEmbed00ab")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata after escalation")
	}

	second := transport.playerPayloads[1]
	if got := clientName(second); got != "ANDROID" {
		t.Errorf("escalated client = %q, want ANDROID", got)
	}
	if second.Get("context.client.clientScreen").Exists() {
		t.Error("escalated identity must not carry the embed screen")
	}
	if got := second.Get("params").String(); got != identity.PlayerParams {
		t.Errorf("params = %q", got)
	}
}

func TestResolveNonEmbeddableTerminalAfterEscalation(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, `{"playabilityStatus":{"status":"UNPLAYABLE",
			"reason":"Playback on other websites has been disabled by the video owner"}}`
	})

	_, err := r.Resolve(context.Background(), "noEmbed00ab")
	if !errors.Is(err, errs.ErrNotEmbeddable) {
		t.Fatalf("expected embed restriction error, got %v", err)
	}
	if len(transport.playerPayloads) != 2 {
		t.Errorf("player called %d times, want exactly one escalation", len(transport.playerPayloads))
	}
}

func TestResolveRetriesVideoIDMismatchOnce(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		if clientName(payload) == "WEB" {
			return http.StatusOK, okResponse("expected0ab")
		}
		return http.StatusOK, okResponse("different0b")
	})

	meta, err := r.Resolve(context.Background(), "expected0ab")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta == nil || meta.VideoID != "expected0ab" {
		t.Fatalf("meta = %+v", meta)
	}

	if len(transport.playerPayloads) != 2 {
		t.Fatalf("player called %d times, want 2", len(transport.playerPayloads))
	}
	if got := clientName(transport.playerPayloads[1]); got != "WEB" {
		t.Errorf("retry client = %q, want WEB", got)
	}
}

func TestResolveWithMismatchDoesNotRetry(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, okResponse("different0b")
	})

	_, err := r.ResolveWith(context.Background(), "expected0ab", identity.Web)
	ue, ok := errs.IsUserError(err)
	if !ok {
		t.Fatalf("expected user error, got %v", err)
	}
	if _, ok := errs.IsProtocolError(ue.Err); !ok {
		t.Errorf("mismatch must wrap a protocol error, got %v", ue.Err)
	}
	if len(transport.playerPayloads) != 1 {
		t.Errorf("player called %d times, want 1", len(transport.playerPayloads))
	}
}

func TestResolveRetriesRejectedRequestWithWebEmbed(t *testing.T) {
	r, transport := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		if clientName(payload) == "ANDROID" {
			return http.StatusBadRequest, `{}`
		}
		return http.StatusOK, okResponse("rejected0ab")
	})

	meta, err := r.Resolve(context.Background(), "rejected0ab")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata after retry")
	}

	if len(transport.playerPayloads) != 2 {
		t.Fatalf("player called %d times, want 2", len(transport.playerPayloads))
	}
	retry := transport.playerPayloads[1]
	if got := clientName(retry); got != "WEB" {
		t.Errorf("retry client = %q, want WEB", got)
	}
	if got := retry.Get("context.client.clientScreen").String(); got != "EMBED" {
		t.Errorf("retry clientScreen = %q", got)
	}
	if got := retry.Get("context.thirdParty.embedUrl").String(); got != "https://google.com" {
		t.Errorf("retry embedUrl = %q", got)
	}
}

func TestResolveSurfacesInvalidResponseBody(t *testing.T) {
	r, _ := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, `<html>not json</html>`
	})

	_, err := r.Resolve(context.Background(), "garbled00ab")
	pe, ok := errs.IsProtocolError(err)
	if !ok {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(pe.RawContext, "not json") {
		t.Errorf("raw context must carry the body, got %q", pe.RawContext)
	}
}

func TestResolveStoresScriptFromResponse(t *testing.T) {
	r, _ := newTestResolver(t, func(call int, payload gjson.Result) (int, string) {
		return http.StatusOK, `{"playabilityStatus":{"status":"OK"},
			"videoDetails":{"videoId":"dQw4w9WgXcQ"},
			"assets":{"js":"/s/player/fresh/base.js"},
			"streamingData":{"adaptiveFormats":[]}}`
	})

	meta, err := r.Resolve(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if meta.PlayerScriptURL != "https://www.youtube.com/s/player/fresh/base.js" {
		t.Errorf("PlayerScriptURL = %q", meta.PlayerScriptURL)
	}
	if got := r.Scripts().Peek().URL; got != meta.PlayerScriptURL {
		t.Errorf("cache url = %q, want the stored reference", got)
	}
}
