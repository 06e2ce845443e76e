package captions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"meet-coordinator/internal/store"
)

type engineFunc func(ctx context.Context, wavPath, language string, task Task) (Result, error)

func (f engineFunc) Transcribe(ctx context.Context, wavPath, language string, task Task) (Result, error) {
	return f(ctx, wavPath, language, task)
}

type recordingNotifier struct {
	mu       sync.Mutex
	updates  []store.CaptionSegment
	meetings []string
	errs     []string
}

func (n *recordingNotifier) CaptionUpdate(meetingID string, seg store.CaptionSegment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.meetings = append(n.meetings, meetingID)
	n.updates = append(n.updates, seg)
}

func (n *recordingNotifier) CaptionError(meetingID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, message)
}

func passthroughNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n := NewNormalizer("ffmpeg", t.TempDir())
	n.WithRunner(func(context.Context, string, ...string) error { return nil })
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob() Job {
	return Job{
		MeetingID:    "m1",
		ConnectionID: "conn-1",
		SpeakerID:    "u1",
		SpeakerName:  "Ada",
		Audio:        []byte("OggS....."),
		MIMEType:     "audio/ogg",
	}
}

func TestPipeline_Process_boundedConcurrency(t *testing.T) {
	const jobs = 6
	const slots = 2

	var current, peak int32
	engine := engineFunc(func(context.Context, string, string, Task) (Result, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return Result{Language: "en"}, nil
	})

	notify := &recordingNotifier{}
	p := NewPipeline(passthroughNormalizer(t), engine, store.NewMemoryStore(), notify, quietLogger(), nil, slots, 0)

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Process(context.Background(), testJob())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > slots {
		t.Errorf("peak simultaneous engine calls = %d, want <= %d", got, slots)
	}
	if got := p.AvailableSlots(); got != slots {
		t.Errorf("AvailableSlots after drain = %d, want %d", got, slots)
	}
}

func TestPipeline_Process_slotsReturnAfterFailures(t *testing.T) {
	engine := engineFunc(func(context.Context, string, string, Task) (Result, error) {
		return Result{}, errors.New("engine returned 400")
	})
	notify := &recordingNotifier{}
	p := NewPipeline(passthroughNormalizer(t), engine, store.NewMemoryStore(), notify, quietLogger(), nil, 2, 0)

	for i := 0; i < 4; i++ {
		p.Process(context.Background(), testJob())
	}
	if got := p.AvailableSlots(); got != 2 {
		t.Errorf("AvailableSlots after failed jobs = %d, want 2", got)
	}
	if len(notify.errs) != 4 {
		t.Errorf("caption errors = %d, want one per failed job", len(notify.errs))
	}
}

func TestPipeline_Process_filtersPersistsAndNotifies(t *testing.T) {
	engine := engineFunc(func(context.Context, string, string, Task) (Result, error) {
		return Result{
			Language: "en",
			Segments: []Segment{
				{Start: 0, End: 1.5, Text: " Hello there "},
				{Start: 1.5, End: 1.8, Text: "..."},
				{Start: 1.8, End: 2.0, Text: "12345"},
			},
		}, nil
	})
	st := store.NewMemoryStore()
	notify := &recordingNotifier{}
	p := NewPipeline(passthroughNormalizer(t), engine, st, notify, quietLogger(), nil, 2, 0)

	p.Process(context.Background(), testJob())

	saved, err := st.ListCaptions(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 {
		t.Fatalf("persisted captions = %d, want 1 (noise filtered out)", len(saved))
	}
	got := saved[0]
	if got.Text != "Hello there" {
		t.Errorf("Text = %q, want trimmed %q", got.Text, "Hello there")
	}
	if got.Speaker != "u1" || got.SpeakerName != "Ada" {
		t.Errorf("speaker identity = %q/%q", got.Speaker, got.SpeakerName)
	}
	if got.Language != "en" || !got.IsFinal || got.Duration != 1.5 {
		t.Errorf("segment metadata = %+v", got)
	}
	if len(notify.updates) != 1 || notify.meetings[0] != "m1" {
		t.Errorf("broadcasts = %d to %v, want 1 to m1", len(notify.updates), notify.meetings)
	}
	if len(notify.errs) != 0 {
		t.Errorf("unexpected caption errors: %v", notify.errs)
	}
}

func TestPipeline_Process_durationNeverNegative(t *testing.T) {
	engine := engineFunc(func(context.Context, string, string, Task) (Result, error) {
		return Result{
			Language: "en",
			Segments: []Segment{{Start: 2.0, End: 1.0, Text: "out of order"}},
		}, nil
	})
	st := store.NewMemoryStore()
	p := NewPipeline(passthroughNormalizer(t), engine, st, &recordingNotifier{}, quietLogger(), nil, 1, 0)

	p.Process(context.Background(), testJob())

	saved, _ := st.ListCaptions(context.Background(), "m1")
	if len(saved) != 1 || saved[0].Duration != 0 {
		t.Errorf("captions = %+v, want one with duration clamped to 0", saved)
	}
}

func TestPipeline_Process_normalizationFailure(t *testing.T) {
	var engineCalls int32
	engine := engineFunc(func(context.Context, string, string, Task) (Result, error) {
		atomic.AddInt32(&engineCalls, 1)
		return Result{}, nil
	})
	norm := NewNormalizer("ffmpeg", t.TempDir())
	norm.WithRunner(func(context.Context, string, ...string) error {
		return errors.New("invalid data found when processing input")
	})

	notify := &recordingNotifier{}
	p := NewPipeline(norm, engine, store.NewMemoryStore(), notify, quietLogger(), nil, 2, 0)

	p.Process(context.Background(), testJob())

	if atomic.LoadInt32(&engineCalls) != 0 {
		t.Error("engine must not run when the clip cannot be decoded")
	}
	if len(notify.errs) != 1 {
		t.Fatalf("caption errors = %v, want one advisory", notify.errs)
	}
	if got := p.AvailableSlots(); got != 2 {
		t.Errorf("AvailableSlots = %d, want 2", got)
	}
}

func TestPipeline_Process_normalizesLanguageTag(t *testing.T) {
	var gotLanguage, gotTask atomic.Value
	engine := engineFunc(func(_ context.Context, _ string, language string, task Task) (Result, error) {
		gotLanguage.Store(language)
		gotTask.Store(task)
		return Result{Language: "en"}, nil
	})
	p := NewPipeline(passthroughNormalizer(t), engine, store.NewMemoryStore(), &recordingNotifier{}, quietLogger(), nil, 1, 0)

	job := testJob()
	job.Language = "en-US"
	job.Translate = true
	p.Process(context.Background(), job)

	if gotLanguage.Load() != "en" {
		t.Errorf("engine language = %v, want base tag en", gotLanguage.Load())
	}
	if gotTask.Load() != TaskTranslate {
		t.Errorf("engine task = %v, want translate", gotTask.Load())
	}
}

func TestPipeline_Process_persistFailureStillBroadcasts(t *testing.T) {
	engine := engineFunc(func(context.Context, string, string, Task) (Result, error) {
		return Result{Language: "en", Segments: []Segment{{End: 1, Text: "Hello there"}}}, nil
	})
	notify := &recordingNotifier{}
	p := NewPipeline(passthroughNormalizer(t), engine, failingCaptionStore{store.NewMemoryStore()}, notify, quietLogger(), nil, 1, 0)

	p.Process(context.Background(), testJob())

	if len(notify.updates) != 1 {
		t.Errorf("broadcasts = %d, want 1 despite persistence failure", len(notify.updates))
	}
}

type failingCaptionStore struct {
	store.Store
}

func (failingCaptionStore) AppendCaption(context.Context, string, store.CaptionSegment) error {
	return errors.New("write concern error")
}
