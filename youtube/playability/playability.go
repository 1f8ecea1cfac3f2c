// Package playability classifies the provider's playability status block
// into the fixed set of outcomes the resolution ladder escalates on.
package playability

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
)

// Status is the classification outcome for one player response.
type Status int

const (
	// Playable means the response carries usable track data.
	Playable Status = iota
	// RequiresLogin means a login wall was hit; one escalated re-fetch with
	// the television embedded identity may resolve it.
	RequiresLogin
	// DoesNotExist means the video legitimately does not exist.
	DoesNotExist
	// ContentCheckRequired means the provider demands an interactive
	// confirmation; always reported as a terminal failure.
	ContentCheckRequired
	// LiveOffline means a live stream is not currently running.
	LiveOffline
	// PremiereTrailer means the response wraps a trailer payload for an
	// upcoming premiere.
	PremiereTrailer
	// NonEmbeddable means the owner disabled playback on other websites.
	NonEmbeddable
)

func (s Status) String() string {
	switch s {
	case Playable:
		return "playable"
	case RequiresLogin:
		return "requires-login"
	case DoesNotExist:
		return "does-not-exist"
	case ContentCheckRequired:
		return "content-check-required"
	case LiveOffline:
		return "live-offline"
	case PremiereTrailer:
		return "premiere-trailer"
	case NonEmbeddable:
		return "non-embeddable"
	}
	return "unknown"
}

// Classify inspects the playabilityStatus block of a player response.
// secondCheck marks a classification performed after an escalated re-fetch:
// it upgrades the age-gate and embed-restriction cases from retryable
// outcomes to terminal failures, since the escalation already failed to
// clear them.
func Classify(playerResponse gjson.Result, secondCheck bool) (Status, error) {
	statusBlock := playerResponse.Get("playabilityStatus")
	if !statusBlock.Exists() {
		return 0, errs.NewProtocolError("no playability status block", playerResponse.Raw, nil)
	}

	status := statusBlock.Get("status")
	if !status.Exists() {
		return 0, errs.NewProtocolError("no playability status field", statusBlock.Raw, nil)
	}

	switch status.String() {
	case "OK":
		return Playable, nil

	case "ERROR":
		reason := statusBlock.Get("reason").String()
		if strings.Contains(reason, "This video is unavailable") {
			return DoesNotExist, nil
		}
		return 0, errs.NewUserError(reason, errs.Common, nil)

	case "UNPLAYABLE":
		reason := UnplayableReason(statusBlock)
		if strings.Contains(reason, "Playback on other websites has been disabled by the video owner") {
			if secondCheck {
				return 0, errs.NewUserError(reason, errs.Common, errs.ErrNotEmbeddable)
			}
			return NonEmbeddable, nil
		}
		return 0, errs.NewUserError(reason, errs.Common, nil)

	case "LOGIN_REQUIRED":
		reason := statusBlock.Get("reason").String()
		if strings.Contains(reason, "This video is private") {
			return 0, errs.NewUserError("This is a private video.", errs.Common, errs.ErrPrivate)
		}
		if strings.Contains(reason, "This video may be inappropriate for some users") && secondCheck {
			return 0, errs.NewUserError("This video requires age verification.", errs.Suspicious, errs.ErrAgeRestricted)
		}
		return RequiresLogin, nil

	case "CONTENT_CHECK_REQUIRED":
		return 0, errs.NewUserError(UnplayableReason(statusBlock), errs.Common, nil)

	case "LIVE_STREAM_OFFLINE":
		if statusBlock.Get("errorScreen.ypcTrailerRenderer").Exists() {
			return PremiereTrailer, nil
		}
		return 0, errs.NewUserError(UnplayableReason(statusBlock), errs.Common, nil)

	default:
		return 0, errs.NewUserError("This video cannot be viewed anonymously.", errs.Common, nil)
	}
}

// UnplayableReason extracts the most specific reason text from a status
// block: a structured subreason (single text or newline-joined runs) when
// present, the flat reason field otherwise.
func UnplayableReason(statusBlock gjson.Result) string {
	reason := statusBlock.Get("reason").String()

	subreason := statusBlock.Get("errorScreen.playerErrorMessageRenderer.subreason")
	if !subreason.Exists() {
		return reason
	}

	if simple := subreason.Get("simpleText"); simple.Exists() {
		return simple.String()
	}

	if runs := subreason.Get("runs"); runs.IsArray() {
		var sb strings.Builder
		runs.ForEach(func(_, run gjson.Result) bool {
			sb.WriteString(run.Get("text").String())
			sb.WriteByte('\n')
			return true
		})
		return sb.String()
	}

	return reason
}
