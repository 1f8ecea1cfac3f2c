// Package resolver loads and classifies track metadata from the provider's
// player endpoint, escalating across client identities on rejection.
package resolver

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
	"github.com/ytget/ytaudio/internal/log"
	"github.com/ytget/ytaudio/types"
	"github.com/ytget/ytaudio/youtube/identity"
	"github.com/ytget/ytaudio/youtube/innertube"
	"github.com/ytget/ytaudio/youtube/playability"
)

// ScriptTimestamper resolves the signature timestamp of an obfuscation
// script, needed in every player payload.
type ScriptTimestamper interface {
	ScriptTimestamp(ctx context.Context, playerScriptURL string) (int, error)
}

// noEscalation marks the initial, un-escalated fetch.
const noEscalation playability.Status = -1

// Resolver loads track details for video identifiers.
type Resolver struct {
	it      *innertube.Client
	scripts *ScriptCache
	ts      ScriptTimestamper
	log     zerolog.Logger
}

// New builds a resolver on top of an innertube client and a signature
// timestamp source.
func New(it *innertube.Client, ts ScriptTimestamper) *Resolver {
	return &Resolver{
		it:      it,
		scripts: NewScriptCache(it),
		ts:      ts,
		log:     log.WithComponent("resolver"),
	}
}

// Scripts exposes the shared obfuscation script cache.
func (r *Resolver) Scripts() *ScriptCache {
	return r.scripts
}

// Resolve loads classified metadata for a video. It returns nil with no
// error when the video does not exist.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (*types.TrackMetadata, error) {
	return r.resolve(ctx, videoID, nil)
}

// ResolveWith loads metadata using an explicit identity override, skipping
// the escalation ladder's identity choices.
func (r *Resolver) ResolveWith(ctx context.Context, videoID string, override identity.Config) (*types.TrackMetadata, error) {
	return r.resolve(ctx, videoID, &override)
}

func (r *Resolver) resolve(ctx context.Context, videoID string, override *identity.Config) (*types.TrackMetadata, error) {
	doc, err := r.loadClassifiedResponse(ctx, videoID, override)
	if err != nil || doc == nil {
		return nil, err
	}

	responseID := doc.Get("videoDetails.videoId").String()
	if responseID != videoID {
		if override == nil {
			r.log.Warn().
				Str("want", videoID).
				Str("got", responseID).
				Msg("received different video than requested, retrying with web identity")
			web := identity.Web
			return r.resolve(ctx, videoID, &web)
		}
		return nil, errs.NewUserError("Video returned by provider isn't what was requested", errs.Common,
			errs.NewProtocolError("video id mismatch", doc.Raw, nil))
	}

	meta := &types.TrackMetadata{
		VideoID:        videoID,
		PlayerResponse: doc.Raw,
		IsLive:         doc.Get("videoDetails.isLive").Bool(),
	}

	scriptURL, err := r.attachPlayerScript(ctx, videoID, *doc)
	if err != nil {
		return nil, err
	}
	meta.PlayerScriptURL = scriptURL

	return meta, nil
}

// loadClassifiedResponse walks the classification ladder: fetch, classify,
// and re-fetch once with an escalated identity where the outcome calls for
// it. A nil document with nil error means the video does not exist.
func (r *Resolver) loadClassifiedResponse(ctx context.Context, videoID string, override *identity.Config) (*gjson.Result, error) {
	doc, err := r.fetchPlayerResponse(ctx, videoID, noEscalation, override)
	if err != nil {
		return nil, err
	}

	status, err := playability.Classify(doc, false)
	if err != nil {
		return nil, err
	}

	switch status {
	case playability.DoesNotExist:
		return nil, nil

	case playability.PremiereTrailer:
		// The trailer payload requires the web identity and arrives nested
		// inside the error screen.
		wrapped, err := r.fetchPlayerResponse(ctx, videoID, status, nil)
		if err != nil {
			return nil, err
		}
		trailer := wrapped.Get("playabilityStatus.errorScreen.ypcTrailerRenderer.unserializedPlayerResponse")
		if !trailer.Exists() {
			return nil, errs.NewProtocolError("premiere trailer payload missing", wrapped.Raw, nil)
		}
		doc = trailer
		if _, err := playability.Classify(doc, true); err != nil {
			return nil, err
		}

	case playability.RequiresLogin:
		doc, err = r.fetchPlayerResponse(ctx, videoID, status, nil)
		if err != nil {
			return nil, err
		}
		if _, err := playability.Classify(doc, true); err != nil {
			return nil, err
		}

	case playability.NonEmbeddable:
		doc, err = r.fetchPlayerResponse(ctx, videoID, status, nil)
		if err != nil {
			return nil, err
		}
		// Classified again only to surface a terminal failure; the outcome
		// itself is not escalated further.
		if _, err := playability.Classify(doc, true); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}

// fetchPlayerResponse performs one player request using the identity the
// escalation step calls for. A rejected request (HTTP 400) on the first
// un-escalated attempt is retried exactly once with the web embed identity.
func (r *Resolver) fetchPlayerResponse(ctx context.Context, videoID string, escalation playability.Status, override *identity.Config) (gjson.Result, error) {
	scriptURL, err := r.scripts.EnsureFresh(ctx, videoID)
	if err != nil {
		return gjson.Result{}, err
	}

	timestamp, err := r.ts.ScriptTimestamp(ctx, scriptURL)
	if err != nil {
		return gjson.Result{}, err
	}

	// The visitor token is best-effort: payloads without it still succeed
	// for most videos.
	visitor, err := r.it.VisitorData(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("visitor data unavailable")
	}

	cfg := r.identityFor(escalation, override).
		WithRootField("racyCheckOk", true).
		WithRootField("contentCheckOk", true).
		WithVideoID(videoID).
		WithVisitorData(visitor).
		WithPlaybackSignatureTimestamp(timestamp)

	body, err := r.it.Player(ctx, cfg)
	if err != nil {
		if errs.IsStatusCode(err, 400) && override == nil {
			r.log.Warn().Str("video_id", videoID).Msg("player request rejected, retrying with web embed identity")
			retry := identity.Web.
				WithClientField("clientScreen", "EMBED").
				WithThirdPartyEmbedURL("https://google.com")
			return r.fetchPlayerResponse(ctx, videoID, escalation, &retry)
		}
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		payload, _ := cfg.Payload()
		return gjson.Result{}, errs.NewProtocolError("received unexpected response from provider",
			"payload: "+string(payload)+"\nbody: "+string(body), nil)
	}

	return gjson.ParseBytes(body), nil
}

// identityFor picks the client identity for one fetch: the caller's
// override when present, the escalation-specific identity otherwise.
func (r *Resolver) identityFor(escalation playability.Status, override *identity.Config) identity.Config {
	if override != nil {
		return *override
	}
	switch escalation {
	case playability.PremiereTrailer:
		return identity.Web
	case playability.NonEmbeddable:
		return identity.Android.WithRootField("params", identity.PlayerParams)
	case playability.RequiresLogin:
		return identity.TVEmbedded
	default:
		return identity.Default()
	}
}

// attachPlayerScript stores a script reference discovered in the response,
// or falls back to the shared cache (refreshing it when stale).
func (r *Resolver) attachPlayerScript(ctx context.Context, videoID string, doc gjson.Result) (string, error) {
	if js := doc.Get("assets.js").String(); js != "" {
		url := js
		if url[0] == '/' {
			url = scriptURLPrefix + url
		}
		r.scripts.Store(url)
		return url, nil
	}
	return r.scripts.EnsureFresh(ctx, videoID)
}
