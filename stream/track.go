package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ytget/ytaudio/errs"
	"github.com/ytget/ytaudio/types"
)

// ContainerKind is the closed set of audio containers the provider serves.
type ContainerKind int

const (
	// ContainerMatroska covers WebM audio.
	ContainerMatroska ContainerKind = iota
	// ContainerMpeg covers MPEG-4 audio.
	ContainerMpeg
)

// ContainerFor maps a format's mime type onto a container kind.
func ContainerFor(mimeType string) (ContainerKind, error) {
	switch {
	case strings.HasSuffix(mimeType, "/webm"):
		return ContainerMatroska, nil
	case strings.HasSuffix(mimeType, "/mp4"):
		return ContainerMpeg, nil
	}
	return 0, fmt.Errorf("%w: no demuxer for %q", errs.ErrUnsupportedStream, mimeType)
}

// Decoder demuxes a container byte stream into decoded audio frames. The
// demuxers themselves live outside this module; callers supply one per
// container kind.
type Decoder interface {
	Decode(ctx context.Context, input io.Reader, emit func(frame []byte) error) error
}

// DecoderSet holds one decoder per container kind.
type DecoderSet struct {
	Matroska Decoder
	Mpeg     Decoder
}

// For returns the decoder handling the given container kind.
func (s DecoderSet) For(kind ContainerKind) (Decoder, error) {
	switch kind {
	case ContainerMatroska:
		if s.Matroska == nil {
			return nil, fmt.Errorf("%w: no matroska decoder configured", errs.ErrUnsupportedStream)
		}
		return s.Matroska, nil
	case ContainerMpeg:
		if s.Mpeg == nil {
			return nil, fmt.Errorf("%w: no mpeg decoder configured", errs.ErrUnsupportedStream)
		}
		return s.Mpeg, nil
	}
	return nil, fmt.Errorf("%w: unknown container kind %d", errs.ErrUnsupportedStream, kind)
}

// Processor feeds a resolved stream through the decoder matching its
// container, producing a finite or open-ended sequence of audio frames.
type Processor struct {
	HTTPClient *http.Client
	Decoders   DecoderSet
}

// Process fetches the signed URL and decodes it, emitting frames until the
// stream ends (finite mode) or the context is cancelled. Read and parse
// errors surface as a single opaque failure.
func (p *Processor) Process(ctx context.Context, rs *types.ResolvedStream, emit func(frame []byte) error) error {
	kind, err := ContainerFor(rs.Format.MimeType)
	if err != nil {
		return err
	}
	decoder, err := p.Decoders.For(kind)
	if err != nil {
		return err
	}

	httpClient := p.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.SignedURL, nil)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return &errs.StatusError{Code: resp.StatusCode, Context: "stream body"}
	}

	if err := decoder.Decode(ctx, resp.Body, emit); err != nil {
		return fmt.Errorf("decode %s track: %w", rs.Format.MimeType, err)
	}
	return nil
}
