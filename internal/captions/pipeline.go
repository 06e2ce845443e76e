package captions

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"meet-coordinator/internal/platform/metrics"
	"meet-coordinator/internal/store"
)

// DefaultConcurrency is the default size of the transcription gate.
const DefaultConcurrency = 2

// defaultConfidence is recorded on persisted segments; the engines in use do
// not report per-segment confidence.
const defaultConfidence = 0.8

// Job is one transient unit of captioning work: a raw audio clip plus the
// speaker identity it was captured under. Jobs exist only for the duration of
// normalize→dispatch→filter and are never persisted.
type Job struct {
	MeetingID    string
	ConnectionID string
	SpeakerID    string
	SpeakerName  string

	Audio     []byte
	MIMEType  string
	Language  string
	Translate bool
}

// Notifier receives pipeline outcomes for fan-out to the room. Implemented by
// the signaling router.
type Notifier interface {
	// CaptionUpdate broadcasts one accepted, persisted segment.
	CaptionUpdate(meetingID string, seg store.CaptionSegment)
	// CaptionError broadcasts a single advisory failure for a clip.
	CaptionError(meetingID, message string)
}

// Pipeline runs captioning jobs under a fixed-size concurrency gate:
// normalize the clip, transcribe it (with the engine's own retry policy),
// filter the recognized segments, persist the keepers, and notify the room.
type Pipeline struct {
	gate    chan struct{}
	norm    *Normalizer
	engine  Engine
	store   store.Store
	notify  Notifier
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewPipeline constructs a Pipeline. concurrency <= 0 falls back to
// DefaultConcurrency; timeout bounds each engine call (the retry policy sees
// a timeout as one more transient failure). metrics may be nil.
func NewPipeline(norm *Normalizer, engine Engine, st store.Store, notify Notifier, log *slog.Logger, m *metrics.Metrics, concurrency int, timeout time.Duration) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{
		gate:    make(chan struct{}, concurrency),
		norm:    norm,
		engine:  engine,
		store:   st,
		notify:  notify,
		log:     log,
		metrics: m,
		timeout: timeout,
	}
}

// AvailableSlots returns the number of free gate slots. Exposed for tests and
// gauge scrapes.
func (p *Pipeline) AvailableSlots() int {
	return cap(p.gate) - len(p.gate)
}

// Process runs one job to completion. It blocks while holding a gate slot and
// is intended to be called from a per-connection worker goroutine so one
// speaker's clips stay ordered while different speakers interleave.
func (p *Pipeline) Process(ctx context.Context, job Job) {
	select {
	case p.gate <- struct{}{}:
	case <-ctx.Done():
		return
	}
	released := false
	release := func() {
		if released {
			panic("captions: concurrency slot released twice")
		}
		released = true
		<-p.gate
	}
	defer release()

	wavPath, err := p.norm.ToWAV(ctx, job.Audio, job.MIMEType)
	if err != nil {
		// The input itself is at fault; one advisory event, no retry.
		p.log.Warn("audio normalization failed",
			slog.String("meeting_id", job.MeetingID),
			slog.String("speaker", job.SpeakerID),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.IncTranscribeFailures()
		}
		p.notify.CaptionError(job.MeetingID, "could not decode audio")
		return
	}
	defer os.Remove(wavPath)

	task := TaskTranscribe
	if job.Translate {
		task = TaskTranslate
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.engine.Transcribe(callCtx, wavPath, NormalizeLanguage(job.Language), task)
	if err != nil {
		p.log.Error("transcription failed",
			slog.String("meeting_id", job.MeetingID),
			slog.String("speaker", job.SpeakerID),
			slog.Bool("retryable", IsTransient(err)),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.IncTranscribeFailures()
		}
		p.notify.CaptionError(job.MeetingID, "transcription failed")
		return
	}

	for _, seg := range result.Segments {
		p.handleSegment(ctx, job, result.Language, seg)
	}
}

// handleSegment filters one recognized segment and, when kept, persists and
// broadcasts it. Persistence is best-effort: a failed append is logged and
// the broadcast still goes out.
func (p *Pipeline) handleSegment(ctx context.Context, job Job, language string, seg Segment) {
	text := strings.TrimSpace(seg.Text)
	if !Keep(text) {
		if p.metrics != nil {
			p.metrics.IncCaptionsRejected()
		}
		return
	}

	duration := seg.End - seg.Start
	if duration < 0 {
		duration = 0
	}

	caption := store.CaptionSegment{
		Speaker:     job.SpeakerID,
		SpeakerName: job.SpeakerName,
		Text:        text,
		Language:    NormalizeLanguage(language),
		Confidence:  defaultConfidence,
		Duration:    duration,
		IsFinal:     true,
		Timestamp:   time.Now().UTC(),
	}

	if err := p.store.AppendCaption(ctx, job.MeetingID, caption); err != nil {
		p.log.Error("caption append failed",
			slog.String("meeting_id", job.MeetingID),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.IncPersistenceFailures()
		}
	}

	if p.metrics != nil {
		p.metrics.IncCaptionsAccepted()
	}
	p.notify.CaptionUpdate(job.MeetingID, caption)
}
