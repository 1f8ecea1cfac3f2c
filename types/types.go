package types

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// ContentLengthUnknown marks a format whose length the provider did not
// declare. Such formats must be consumed as open-ended streams.
const ContentLengthUnknown int64 = -1

// Format describes a single encoded audio format offered by the provider.
type Format struct {
	Itag                int
	MimeType            string
	Codec               string
	Bitrate             int
	AudioChannels       int
	IsDefaultAudioTrack bool
	URL                 string
	SignatureCipher     string
	ContentLength       int64
}

// TrackMetadata holds the classified player response for a single video.
type TrackMetadata struct {
	// VideoID is the identifier that was requested, already verified to
	// match the identifier embedded in the response.
	VideoID string
	// PlayerResponse is the raw JSON document returned by the player
	// endpoint (or the unwrapped trailer payload for premieres).
	PlayerResponse string
	// PlayerScriptURL points at the obfuscation script discovered in the
	// response or taken from the script cache. Empty when formats were not
	// requested and no script reference was present.
	PlayerScriptURL string
	// IsLive is set when the video is an ongoing live stream.
	IsLive bool
}

// Response returns a query handle over the raw player response document.
func (m *TrackMetadata) Response() gjson.Result {
	return gjson.Parse(m.PlayerResponse)
}

// ResolvedStream is a selected format together with its signed URL and the
// script reference that was used to sign it.
type ResolvedStream struct {
	Format          Format
	SignedURL       string
	PlayerScriptURL string
}

// HostFallback derives an alternate stream URL by substituting the first
// host listed in the "mn" multi-host parameter with the next one. It returns
// nil when the URL carries no usable alternate host. The primary resolution
// path never calls this; it is a building block for host-level fallback.
func (s *ResolvedStream) HostFallback() *ResolvedStream {
	u, err := url.Parse(s.SignedURL)
	if err != nil {
		return nil
	}

	hosts := strings.Split(u.Query().Get("mn"), ",")
	if len(hosts) < 2 || hosts[0] == "" {
		return nil
	}

	alternate := strings.Replace(s.SignedURL, hosts[0], hosts[1], 1)
	if _, err := url.Parse(alternate); err != nil {
		return nil
	}

	return &ResolvedStream{
		Format:          s.Format,
		SignedURL:       alternate,
		PlayerScriptURL: s.PlayerScriptURL,
	}
}
