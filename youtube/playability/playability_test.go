package playability

import (
	"errors"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/ytget/ytaudio/errs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		secondCheck bool
		want        Status
		wantErr     bool
		wantCause   error
	}{
		{
			name: "ok",
			doc:  `{"playabilityStatus":{"status":"OK"}}`,
			want: Playable,
		},
		{
			name: "error unavailable",
			doc:  `{"playabilityStatus":{"status":"ERROR","reason":"This video is unavailable"}}`,
			want: DoesNotExist,
		},
		{
			name:    "error other reason",
			doc:     `{"playabilityStatus":{"status":"ERROR","reason":"Something went wrong"}}`,
			wantErr: true,
		},
		{
			name: "unplayable non embeddable",
			doc: `{"playabilityStatus":{"status":"UNPLAYABLE",
				"reason":"Playback on other websites has been disabled by the video owner"}}`,
			want: NonEmbeddable,
		},
		{
			name: "non embeddable second check is terminal",
			doc: `{"playabilityStatus":{"status":"UNPLAYABLE",
				"reason":"Playback on other websites has been disabled by the video owner"}}`,
			secondCheck: true,
			wantErr:     true,
			wantCause:   errs.ErrNotEmbeddable,
		},
		{
			name:    "unplayable other reason",
			doc:     `{"playabilityStatus":{"status":"UNPLAYABLE","reason":"Not available in your country"}}`,
			wantErr: true,
		},
		{
			name: "login required escalates",
			doc:  `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in to confirm you're not a bot"}}`,
			want: RequiresLogin,
		},
		{
			name:      "login required private",
			doc:       `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"This video is private"}}`,
			wantErr:   true,
			wantCause: errs.ErrPrivate,
		},
		{
			name: "age gate first check escalates",
			doc:  `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"This video may be inappropriate for some users."}}`,
			want: RequiresLogin,
		},
		{
			name:        "age gate second check is terminal",
			doc:         `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"This video may be inappropriate for some users."}}`,
			secondCheck: true,
			wantErr:     true,
			wantCause:   errs.ErrAgeRestricted,
		},
		{
			name:    "content check required",
			doc:     `{"playabilityStatus":{"status":"CONTENT_CHECK_REQUIRED","reason":"The following content may contain suicide or self-harm topics"}}`,
			wantErr: true,
		},
		{
			name: "live offline with trailer",
			doc:  `{"playabilityStatus":{"status":"LIVE_STREAM_OFFLINE","errorScreen":{"ypcTrailerRenderer":{}}}}`,
			want: PremiereTrailer,
		},
		{
			name:    "live offline without trailer",
			doc:     `{"playabilityStatus":{"status":"LIVE_STREAM_OFFLINE","reason":"This live event will begin in a few moments"}}`,
			wantErr: true,
		},
		{
			name:    "unknown status",
			doc:     `{"playabilityStatus":{"status":"AGE_CHECK_REQUIRED"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(gjson.Parse(tt.doc), tt.secondCheck)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got status %v", got)
				}
				if _, ok := errs.IsUserError(err); !ok {
					t.Errorf("expected a user error, got %T", err)
				}
				if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
					t.Errorf("error %v does not wrap %v", err, tt.wantCause)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify error: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyMissingStatusBlock(t *testing.T) {
	_, err := Classify(gjson.Parse(`{"videoDetails":{}}`), false)
	if _, ok := errs.IsProtocolError(err); !ok {
		t.Fatalf("expected protocol error, got %v", err)
	}

	_, err = Classify(gjson.Parse(`{"playabilityStatus":{"reason":"no status"}}`), false)
	if _, ok := errs.IsProtocolError(err); !ok {
		t.Fatalf("expected protocol error for missing status field, got %v", err)
	}
}

func TestUnplayableReason(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "flat reason only",
			doc:  `{"reason":"Video unavailable"}`,
			want: "Video unavailable",
		},
		{
			name: "simple subreason wins",
			doc: `{"reason":"Video unavailable",
				"errorScreen":{"playerErrorMessageRenderer":{"subreason":{"simpleText":"Not available in your country"}}}}`,
			want: "Not available in your country",
		},
		{
			name: "runs joined by newlines",
			doc: `{"reason":"Video unavailable",
				"errorScreen":{"playerErrorMessageRenderer":{"subreason":{"runs":[{"text":"first"},{"text":"second"}]}}}}`,
			want: "first\nsecond\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnplayableReason(gjson.Parse(tt.doc)); got != tt.want {
				t.Errorf("UnplayableReason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if Playable.String() != "playable" || RequiresLogin.String() != "requires-login" {
		t.Error("unexpected status names")
	}
	if Status(99).String() != "unknown" {
		t.Error("out-of-range status must stringify as unknown")
	}
}
