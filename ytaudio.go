// Package ytaudio resolves playable audio streams for videos hosted on a
// provider whose playback API is undocumented and access-gated. Given a
// video ID it loads the provider's internal metadata, classifies
// playability (escalating across simulated client identities on login
// walls, age gates and embedding restrictions), selects the best supported
// audio format, and signs its URL.
package ytaudio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/ytget/ytaudio/internal/log"
	"github.com/ytget/ytaudio/pkg/client"
	"github.com/ytget/ytaudio/stream"
	"github.com/ytget/ytaudio/types"
	"github.com/ytget/ytaudio/youtube/cipher"
	"github.com/ytget/ytaudio/youtube/innertube"
	"github.com/ytget/ytaudio/youtube/resolver"
)

// SignatureService is the signature-resolution collaborator: it reports a
// script's signature timestamp and signs format URLs. The cipher package
// provides the default implementation; callers may substitute their own.
type SignatureService interface {
	resolver.ScriptTimestamper
	stream.SignatureResolver
}

// Resolver is the high-level entry point. Configure it with the chainable
// With* methods before the first resolution; resolutions themselves are safe
// to run concurrently.
type Resolver struct {
	httpClient  *http.Client
	retryClient *client.Client
	sig         SignatureService
	logLevel    string

	buildOnce   sync.Once
	coordinator *stream.Coordinator
	details     *resolver.Resolver
}

// New creates a Resolver with default options.
func New() *Resolver {
	return &Resolver{}
}

// WithHTTPClient sets a custom HTTP client for all network calls. It is
// wrapped in the default transient-failure retry policy; use WithClient to
// control that policy too.
func (r *Resolver) WithHTTPClient(httpClient *http.Client) *Resolver {
	r.httpClient = httpClient
	return r
}

// WithClient sets the retrying HTTP client used for all network calls.
func (r *Resolver) WithClient(c *client.Client) *Resolver {
	r.retryClient = c
	return r
}

// WithSignatureService substitutes the signature-resolution collaborator.
func (r *Resolver) WithSignatureService(sig SignatureService) *Resolver {
	r.sig = sig
	return r
}

// WithLogLevel sets the log level ("debug", "info", ...).
func (r *Resolver) WithLogLevel(level string) *Resolver {
	r.logLevel = level
	return r
}

func (r *Resolver) build() {
	r.buildOnce.Do(func() {
		log.Configure(log.Config{Level: r.logLevel})

		httpClient := r.retryClient
		if httpClient == nil {
			httpClient = client.New()
			if r.httpClient != nil {
				httpClient.HTTPClient = r.httpClient
			}
		}

		sig := r.sig
		if sig == nil {
			sig = cipher.New(httpClient)
		}

		it := innertube.New(httpClient)
		r.details = resolver.New(it, sig)
		r.coordinator = stream.NewCoordinator(r.details, sig)
	})
}

// ResolveStream resolves the best audio stream for a video: its format, a
// signed URL, and whether it must be consumed as a finite file or an
// open-ended stream. It returns errs.ErrVideoUnavailable (wrapped in a user
// error) when the video does not exist.
func (r *Resolver) ResolveStream(ctx context.Context, videoID string) (*types.ResolvedStream, stream.AccessMode, error) {
	r.build()
	return r.coordinator.ResolvePlayableURL(ctx, videoID)
}

// ResolveMetadata loads classified track metadata without selecting or
// signing a format. A nil result with nil error means the video does not
// exist.
func (r *Resolver) ResolveMetadata(ctx context.Context, videoID string) (*types.TrackMetadata, error) {
	r.build()
	return r.details.Resolve(ctx, videoID)
}

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID accepts a bare video ID or any of the common watch, share
// and embed URL shapes and returns the video ID.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDRe.MatchString(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("extract video id from %q: %w", input, err)
	}

	var id string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id = strings.TrimPrefix(u.Path, "/")
	case strings.Contains(u.Path, "/embed/"):
		id = u.Path[strings.Index(u.Path, "/embed/")+len("/embed/"):]
	case strings.Contains(u.Path, "/shorts/"):
		id = u.Path[strings.Index(u.Path, "/shorts/")+len("/shorts/"):]
	default:
		id = u.Query().Get("v")
	}
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}

	if !videoIDRe.MatchString(id) {
		return "", fmt.Errorf("no video id found in %q", input)
	}
	return id, nil
}
