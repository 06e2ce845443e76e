package captions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func inputArg(args []string) string {
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestExtFromMIME(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"audio/webm;codecs=opus", ".webm"},
		{"audio/ogg", ".ogg"},
		{"audio/wav", ".wav"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"audio/x-m4a", ".m4a"},
		{"application/octet-stream", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extFromMIME(tt.hint); got != tt.want {
			t.Errorf("extFromMIME(%q) = %q, want %q", tt.hint, got, tt.want)
		}
	}
}

func TestSniffExt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"ebml", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, ".webm"},
		{"ogg", []byte("OggS....."), ".ogg"},
		{"wav", []byte("RIFF1234WAVEfmt "), ".wav"},
		{"mp3 id3", []byte("ID3\x03rest"), ".mp3"},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90}, ".mp3"},
		{"m4a", []byte("\x00\x00\x00\x20ftypM4A "), ".m4a"},
		{"unknown defaults to webm", []byte{0x00, 0x01, 0x02, 0x03, 0x04}, ".webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffExt(tt.data); got != tt.want {
				t.Errorf("sniffExt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizer_ToWAV_firstAttemptSucceeds(t *testing.T) {
	dir := t.TempDir()
	n := NewNormalizer("ffmpeg", dir)

	var inputs []string
	n.WithRunner(func(_ context.Context, _ string, args ...string) error {
		inputs = append(inputs, inputArg(args))
		return nil
	})

	out, err := n.ToWAV(context.Background(), []byte("OggS....."), "audio/ogg")
	if err != nil {
		t.Fatalf("ToWAV: %v", err)
	}
	if !strings.HasSuffix(out, ".wav") {
		t.Errorf("output path = %q, want .wav", out)
	}
	if len(inputs) != 1 || !strings.HasSuffix(inputs[0], ".ogg") {
		t.Errorf("transcode inputs = %v, want one .ogg attempt", inputs)
	}
	assertNoLeftoverInputs(t, dir)
}

func TestNormalizer_ToWAV_fallbackTraversal(t *testing.T) {
	dir := t.TempDir()
	n := NewNormalizer("ffmpeg", dir)

	var inputs []string
	n.WithRunner(func(_ context.Context, _ string, args ...string) error {
		in := inputArg(args)
		inputs = append(inputs, in)
		if strings.HasSuffix(in, ".mp3") {
			return nil
		}
		return errors.New("invalid data found when processing input")
	})

	// Hinted as webm, actually decodable only as mp3.
	out, err := n.ToWAV(context.Background(), []byte{0x00, 0x01, 0x02, 0x03}, "audio/webm")
	if err != nil {
		t.Fatalf("ToWAV with fallback: %v", err)
	}
	if out == "" {
		t.Fatal("ToWAV returned empty path")
	}
	// One traversal: .webm (hint), then .ogg, then .mp3; the hinted
	// extension is not retried.
	wantSuffixes := []string{".webm", ".ogg", ".mp3"}
	if len(inputs) != len(wantSuffixes) {
		t.Fatalf("attempts = %v, want %d", inputs, len(wantSuffixes))
	}
	for i, suffix := range wantSuffixes {
		if !strings.HasSuffix(inputs[i], suffix) {
			t.Errorf("attempt %d input = %q, want suffix %q", i, inputs[i], suffix)
		}
	}
	assertNoLeftoverInputs(t, dir)
}

func TestNormalizer_ToWAV_totalFailure_firstErrorSurfaces(t *testing.T) {
	dir := t.TempDir()
	n := NewNormalizer("ffmpeg", dir)

	attempts := 0
	n.WithRunner(func(_ context.Context, _ string, args ...string) error {
		attempts++
		return errors.New("attempt " + string(rune('0'+attempts)))
	})

	_, err := n.ToWAV(context.Background(), []byte{0x00, 0x01}, "audio/webm")
	if err == nil {
		t.Fatal("ToWAV should fail when every container fails")
	}
	if !strings.Contains(err.Error(), "attempt 1") {
		t.Errorf("surfaced error = %v, want the first attempt's", err)
	}
	// Hint covered .webm; the remaining four fallbacks were each tried once.
	if attempts != 5 {
		t.Errorf("attempts = %d, want 5 (one traversal, no recursion)", attempts)
	}
	// Everything is cleaned up, including the partial output.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftover files after total failure: %v", entries)
	}
}

func TestNormalizer_ToWAV_emptyBuffer(t *testing.T) {
	n := NewNormalizer("ffmpeg", t.TempDir())
	if _, err := n.ToWAV(context.Background(), nil, ""); err == nil {
		t.Error("ToWAV(nil) should fail")
	}
}

// assertNoLeftoverInputs checks every intermediate input file was removed;
// only the (fake) output may remain.
func assertNoLeftoverInputs(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".wav" {
			t.Errorf("leftover intermediate file: %s", e.Name())
		}
	}
}
