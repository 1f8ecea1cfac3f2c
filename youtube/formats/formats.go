// Package formats extracts the provider's encoded format list from a player
// response and picks the best supported audio format.
package formats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
	"github.com/ytget/ytaudio/types"
)

// Info identifies a recognized container/codec pairing. Lower values are
// preferred during selection.
type Info int

const (
	// WebmOpus is Opus audio in a WebM (Matroska) container.
	WebmOpus Info = iota
	// Mp4AacLc is AAC-LC audio in an MPEG-4 container.
	Mp4AacLc
	// WebmVorbis is Vorbis audio in a WebM container.
	WebmVorbis
)

const (
	mimeAudioWebm = "audio/webm"
	mimeAudioMp4  = "audio/mp4"
)

// InfoFor resolves the recognized pairing for a format, or ok=false when the
// combination is not one the module can decode.
func InfoFor(f types.Format) (Info, bool) {
	codec := strings.ToLower(f.Codec)
	switch {
	case f.MimeType == mimeAudioWebm && codec == "opus":
		return WebmOpus, true
	case f.MimeType == mimeAudioMp4 && strings.HasPrefix(codec, "mp4a"):
		return Mp4AacLc, true
	case f.MimeType == mimeAudioWebm && codec == "vorbis":
		return WebmVorbis, true
	}
	return 0, false
}

// Parse reads streamingData.formats and streamingData.adaptiveFormats from a
// player response document.
func Parse(doc gjson.Result) []types.Format {
	var out []types.Format
	collect := func(_, node gjson.Result) bool {
		out = append(out, parseOne(node))
		return true
	}
	doc.Get("streamingData.formats").ForEach(collect)
	doc.Get("streamingData.adaptiveFormats").ForEach(collect)
	return out
}

func parseOne(node gjson.Result) types.Format {
	f := types.Format{
		Itag:            int(node.Get("itag").Int()),
		Bitrate:         int(node.Get("bitrate").Int()),
		URL:             node.Get("url").String(),
		SignatureCipher: node.Get("signatureCipher").String(),
		ContentLength:   types.ContentLengthUnknown,
	}

	f.MimeType, f.Codec = splitMimeType(node.Get("mimeType").String())

	if ch := node.Get("audioChannels"); ch.Exists() {
		f.AudioChannels = int(ch.Int())
	} else {
		f.AudioChannels = 2
	}

	// The provider omits the audioTrack block for the sole (default) track.
	if track := node.Get("audioTrack"); track.Exists() {
		f.IsDefaultAudioTrack = track.Get("audioIsDefault").Bool()
	} else {
		f.IsDefaultAudioTrack = true
	}

	if cl := node.Get("contentLength"); cl.Exists() {
		if v := cl.Int(); v > 0 {
			f.ContentLength = v
		}
	}

	return f
}

// splitMimeType separates `audio/webm; codecs="opus"` into the bare mime
// type and the first declared codec.
func splitMimeType(mime string) (string, string) {
	base, params, _ := strings.Cut(mime, ";")
	base = strings.TrimSpace(base)

	var codec string
	if i := strings.Index(params, "codecs=\""); i >= 0 {
		rest := params[i+len("codecs=\""):]
		if j := strings.IndexByte(rest, '"'); j >= 0 {
			codec = rest[:j]
		}
	}
	if i := strings.IndexByte(codec, ','); i >= 0 {
		codec = codec[:i]
	}
	return base, strings.TrimSpace(codec)
}

// SelectBest picks the best default audio track from the list. Candidates
// with unrecognized container/codec info never qualify, and Opus in WebM
// with more than two channels is rejected outright. Ties within the same
// preference tier are broken by higher bitrate.
func SelectBest(list []types.Format) (types.Format, error) {
	var best *types.Format

	for i := range list {
		f := &list[i]
		if !f.IsDefaultAudioTrack {
			continue
		}
		if isBetter(f, best) {
			best = f
		}
	}

	if best == nil {
		return types.Format{}, fmt.Errorf("%w, available types: %s",
			errs.ErrNoPlayableFormats, strings.Join(distinctTypes(list), ", "))
	}
	return *best, nil
}

func isBetter(f, other *types.Format) bool {
	info, ok := InfoFor(*f)
	if !ok {
		return false
	}
	// Opus with more than 2 audio channels is unsupported by the decoders.
	if f.MimeType == mimeAudioWebm && f.AudioChannels > 2 {
		return false
	}
	if other == nil {
		return true
	}
	otherInfo, _ := InfoFor(*other)
	if info != otherInfo {
		return info < otherInfo
	}
	return f.Bitrate > other.Bitrate
}

func distinctTypes(list []types.Format) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, f := range list {
		key := f.MimeType
		if f.Codec != "" {
			key += "/" + f.Codec
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
