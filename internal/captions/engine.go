// Package captions implements the live-captioning pipeline: audio
// normalization, bounded-concurrency dispatch to a speech-recognition engine
// with retry/backoff, noise filtering, and persistence of accepted segments.
package captions

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Task selects what the engine does with the audio.
type Task string

const (
	// TaskTranscribe produces text in the spoken language.
	TaskTranscribe Task = "transcribe"
	// TaskTranslate produces English text regardless of the spoken language.
	TaskTranslate Task = "translate"
)

// Segment is one recognized span of speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the engine output for one audio clip: the detected (or confirmed)
// language and the recognized segments in order.
type Result struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Engine turns a normalized WAV file into recognized text. Implementations
// may run a local model process or call a remote HTTP endpoint; failures
// surface as transient (retryable) or permanent errors.
type Engine interface {
	Transcribe(ctx context.Context, wavPath, language string, task Task) (Result, error)
}

// TransientError marks a failure worth retrying: rate limiting, upstream 5xx,
// network timeouts, or a response that is not valid JSON. RetryAfter carries a
// server-supplied wait hint when present (rate-limit responses), else zero.
type TransientError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Reason, e.Err)
	}
	return "transient: " + e.Reason
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// retryAfterHint extracts the server wait hint from err, or zero.
func retryAfterHint(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
