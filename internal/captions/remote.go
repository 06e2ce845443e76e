package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const remoteUserAgent = "meet-coordinator/1.0"

// RemoteEngine reaches a speech-recognition service over HTTP. One POST per
// clip: multipart form with the WAV file plus language and task fields. Rate
// limits, 5xx responses, transport errors, and non-JSON bodies are retried
// under the configured Policy; everything else is permanent.
type RemoteEngine struct {
	URL    string
	Client *http.Client
	Retry  Policy
}

// NewRemoteEngine returns a RemoteEngine posting to url with the given
// per-call timeout and retry policy.
func NewRemoteEngine(url string, timeout time.Duration, retry Policy) *RemoteEngine {
	return &RemoteEngine{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Retry:  retry,
	}
}

// Transcribe implements Engine.
func (e *RemoteEngine) Transcribe(ctx context.Context, wavPath, language string, task Task) (Result, error) {
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return Result{}, fmt.Errorf("read normalized audio: %w", err)
	}

	var result Result
	err = e.Retry.Do(ctx, func() error {
		var callErr error
		result, callErr = e.call(ctx, wav, filepath.Base(wavPath), language, task)
		return callErr
	})
	return result, err
}

// call performs one upstream request and classifies the outcome.
func (e *RemoteEngine) call(ctx context.Context, wav []byte, filename, language string, task Task) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	translate := "false"
	if task == TaskTranslate {
		translate = "true"
	}
	if err := mw.WriteField("translate", translate); err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return Result{}, fmt.Errorf("build form: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, &body)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", remoteUserAgent)

	resp, err := e.Client.Do(req)
	if err != nil {
		return Result{}, &TransientError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &TransientError{Reason: "read response", Err: err}
	}

	// Proxies and gateways answer with HTML error pages; those are upstream
	// trouble, not a malformed success.
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "<") {
		return Result{}, &TransientError{Reason: "html response from engine"}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &TransientError{
			Reason:     "rate limited",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return Result{}, &TransientError{
			Reason: fmt.Sprintf("engine returned %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return Result{}, fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return parseEngineResponse(raw)
}

// engineResponse accepts both wire spellings of the segment list: whisper
// services emit "segments", the caption-service protocol emits "captions".
type engineResponse struct {
	Success  *bool     `json:"success"`
	Message  string    `json:"message"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
	Captions []Segment `json:"captions"`
}

func parseEngineResponse(raw []byte) (Result, error) {
	var wire engineResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, &TransientError{Reason: "non-json response from engine", Err: err}
	}
	if wire.Success != nil && !*wire.Success {
		msg := wire.Message
		if msg == "" {
			msg = "engine reported failure"
		}
		return Result{}, fmt.Errorf("engine: %s", msg)
	}
	segments := wire.Segments
	if len(segments) == 0 {
		segments = wire.Captions
	}
	return Result{Language: wire.Language, Segments: segments}, nil
}

// parseRetryAfter handles the delay-seconds form of the header. The HTTP-date
// form is rare from inference services and falls back to computed backoff.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if sec, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return 0
}
