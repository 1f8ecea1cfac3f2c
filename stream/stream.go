// Package stream turns resolved track metadata into a playable stream
// descriptor and decides how the audio must be consumed.
package stream

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ytget/ytaudio/errs"
	"github.com/ytget/ytaudio/internal/log"
	"github.com/ytget/ytaudio/types"
	"github.com/ytget/ytaudio/youtube/formats"
	"github.com/ytget/ytaudio/youtube/identity"
)

// AccessMode states how the resolved audio must be consumed.
type AccessMode int

const (
	// ModeFile marks a finite, seekable resource of known length.
	ModeFile AccessMode = iota
	// ModeStream marks an open-ended stream of unknown length.
	ModeStream
)

func (m AccessMode) String() string {
	if m == ModeStream {
		return "stream"
	}
	return "file"
}

// DetailsResolver loads classified track metadata.
type DetailsResolver interface {
	Resolve(ctx context.Context, videoID string) (*types.TrackMetadata, error)
	ResolveWith(ctx context.Context, videoID string, override identity.Config) (*types.TrackMetadata, error)
}

// SignatureResolver turns a format's raw URL into a signed, playable one
// using the referenced obfuscation script.
type SignatureResolver interface {
	ResolveFormatURL(ctx context.Context, playerScriptURL string, format types.Format) (string, error)
}

// Coordinator resolves playable URLs and applies the identity fallback
// ladder when the provider rejects the first attempt.
type Coordinator struct {
	details DetailsResolver
	sig     SignatureResolver
	log     zerolog.Logger
}

// NewCoordinator wires a coordinator from its two collaborators.
func NewCoordinator(details DetailsResolver, sig SignatureResolver) *Coordinator {
	return &Coordinator{
		details: details,
		sig:     sig,
		log:     log.WithComponent("stream"),
	}
}

// ResolvePlayableURL resolves the best audio format for a video together
// with its signed URL and access mode. When the default identity is
// rejected outright (HTTP 403 or 400), the entire chain is re-attempted
// exactly once with the web identity and the alternate parameter set; any
// further failure propagates unchanged.
func (c *Coordinator) ResolvePlayableURL(ctx context.Context, videoID string) (*types.ResolvedStream, AccessMode, error) {
	rs, mode, err := c.resolveOnce(ctx, videoID, nil)
	if err == nil {
		return rs, mode, nil
	}

	if !errs.IsStatusCode(err, http.StatusForbidden) && !errs.IsStatusCode(err, http.StatusBadRequest) {
		return nil, 0, err
	}

	c.log.Warn().
		Str("video_id", videoID).
		Err(err).
		Msg("provider rejected default identity, re-requesting with web identity")

	fallback := identity.Web.WithRootField("params", identity.PlayerParamsWeb)
	return c.resolveOnce(ctx, videoID, &fallback)
}

func (c *Coordinator) resolveOnce(ctx context.Context, videoID string, override *identity.Config) (*types.ResolvedStream, AccessMode, error) {
	var (
		meta *types.TrackMetadata
		err  error
	)
	if override != nil {
		meta, err = c.details.ResolveWith(ctx, videoID, *override)
	} else {
		meta, err = c.details.Resolve(ctx, videoID)
	}
	if err != nil {
		return nil, 0, err
	}
	if meta == nil {
		return nil, 0, errs.NewUserError("This video is not available", errs.Common, errs.ErrVideoUnavailable)
	}

	best, err := formats.SelectBest(formats.Parse(meta.Response()))
	if err != nil {
		return nil, 0, err
	}

	mode := ModeFile
	if meta.IsLive || best.ContentLength == types.ContentLengthUnknown {
		mode = ModeStream
	}
	if mode == ModeStream && best.MimeType == "audio/webm" {
		return nil, 0, errs.NewUserError("WebM streams are currently not supported.", errs.Common, errs.ErrUnsupportedStream)
	}

	signedURL, err := c.sig.ResolveFormatURL(ctx, meta.PlayerScriptURL, best)
	if err != nil {
		return nil, 0, err
	}

	c.log.Debug().Str("video_id", videoID).Str("mode", mode.String()).Msg("resolved playable url")

	return &types.ResolvedStream{
		Format:          best,
		SignedURL:       signedURL,
		PlayerScriptURL: meta.PlayerScriptURL,
	}, mode, nil
}
