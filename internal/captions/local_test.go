package captions

import (
	"context"
	"errors"
	"testing"
)

func TestLocalEngine_Transcribe(t *testing.T) {
	e := NewLocalEngine("transcribe-helper", "base")
	var gotName string
	var gotArgs []string
	e.WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return []byte(`{"language":"en","segments":[{"start":0,"end":1.4,"text":"Hello there"}]}`), nil
	})

	result, err := e.Transcribe(context.Background(), "/tmp/clip.wav", "en", TaskTranscribe)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Language != "en" || len(result.Segments) != 1 || result.Segments[0].Text != "Hello there" {
		t.Errorf("result = %+v", result)
	}
	if gotName != "transcribe-helper" {
		t.Errorf("command = %q", gotName)
	}
	want := []string{"--audio", "/tmp/clip.wav", "--task", "transcribe", "--model", "base", "--language", "en"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, gotArgs[i], want[i])
		}
	}
}

func TestLocalEngine_Transcribe_omitsEmptyFlags(t *testing.T) {
	e := NewLocalEngine("transcribe-helper", "")
	var gotArgs []string
	e.WithRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(`{"language":"de","segments":[]}`), nil
	})

	if _, err := e.Transcribe(context.Background(), "/tmp/clip.wav", "", TaskTranslate); err != nil {
		t.Fatal(err)
	}
	for _, a := range gotArgs {
		if a == "--model" || a == "--language" {
			t.Errorf("args %v should not carry %s when unset", gotArgs, a)
		}
	}
}

func TestLocalEngine_Transcribe_failuresArePermanent(t *testing.T) {
	e := NewLocalEngine("transcribe-helper", "")
	e.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("model file not found")
	})
	if _, err := e.Transcribe(context.Background(), "/tmp/clip.wav", "", TaskTranscribe); err == nil || IsTransient(err) {
		t.Errorf("command failure should be permanent, got %v", err)
	}

	e.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Loading model...\n"), nil
	})
	if _, err := e.Transcribe(context.Background(), "/tmp/clip.wav", "", TaskTranscribe); err == nil || IsTransient(err) {
		t.Errorf("garbage stdout should be permanent, got %v", err)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"", ""},
		{"en", "en"},
		{"en-US", "en"},
		{"pt-BR", "pt"},
		{"DE", "de"},
		{"not a language tag", "not a language tag"},
	}
	for _, tt := range tests {
		if got := NormalizeLanguage(tt.hint); got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.hint, got, tt.want)
		}
	}
}
