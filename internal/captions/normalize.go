package captions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// fallbackExts is the ordered list of container extensions retried when the
// first transcode of a raw buffer fails. Small and explicit to bound
// worst-case latency; exactly one traversal per clip.
var fallbackExts = []string{".webm", ".ogg", ".mp3", ".wav", ".m4a"}

// Normalizer converts arbitrary short audio clips into the one canonical
// format the engines consume: mono 16 kHz 16-bit linear PCM WAV, produced by
// an external ffmpeg invocation.
type Normalizer struct {
	FFmpegBin string
	TempDir   string

	// runner is swapped out by tests.
	runner func(ctx context.Context, name string, args ...string) error
}

// NewNormalizer returns a Normalizer using ffmpegBin (default "ffmpeg") and
// tempDir (default the system temp directory) for intermediate files.
func NewNormalizer(ffmpegBin, tempDir string) *Normalizer {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Normalizer{FFmpegBin: ffmpegBin, TempDir: tempDir}
}

// WithRunner sets a custom command runner (for testing).
func (n *Normalizer) WithRunner(runner func(ctx context.Context, name string, args ...string) error) {
	n.runner = runner
}

// ToWAV writes data to a temp file and transcodes it to canonical WAV,
// returning the output path. The extension is guessed from mimeHint, then
// sniffed from the byte signature. If the first transcode fails, the buffer
// is retried under each remaining fallback extension until one succeeds.
// Every intermediate input file, and the partial output on failure, is
// removed before returning; on success the caller owns (and deletes) the
// returned WAV. On total failure the first attempt's error is returned.
func (n *Normalizer) ToWAV(ctx context.Context, data []byte, mimeHint string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("normalize: empty audio buffer")
	}

	uid := uuid.NewString()
	inputBase := filepath.Join(n.TempDir, "capture_input_"+uid)
	outputPath := filepath.Join(n.TempDir, "capture_output_"+uid+".wav")

	ext := extFromMIME(mimeHint)
	if ext == "" {
		ext = sniffExt(data)
	}

	tried := map[string]bool{}
	var firstErr error

	attempt := func(ext string) error {
		inputPath := inputBase + ext
		if err := os.WriteFile(inputPath, data, 0o600); err != nil {
			return fmt.Errorf("normalize: write input: %w", err)
		}
		defer os.Remove(inputPath)
		return n.transcode(ctx, inputPath, outputPath)
	}

	tried[ext] = true
	if err := attempt(ext); err == nil {
		return outputPath, nil
	} else {
		firstErr = err
	}

	for _, alt := range fallbackExts {
		if tried[alt] {
			continue
		}
		tried[alt] = true
		if err := attempt(alt); err == nil {
			return outputPath, nil
		}
	}

	os.Remove(outputPath)
	return "", firstErr
}

// transcode runs ffmpeg to produce mono 16 kHz s16le WAV.
func (n *Normalizer) transcode(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-ac", "1",
		"-ar", "16000",
		"-acodec", "pcm_s16le",
		outputPath,
	}
	if n.runner != nil {
		return n.runner(ctx, n.FFmpegBin, args...)
	}
	cmd := exec.CommandContext(ctx, n.FFmpegBin, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// extFromMIME maps a MIME hint to a container extension, or "" when unknown.
func extFromMIME(hint string) string {
	t := strings.ToLower(hint)
	switch {
	case strings.Contains(t, "webm"):
		return ".webm"
	case strings.Contains(t, "ogg"):
		return ".ogg"
	case strings.Contains(t, "wav"):
		return ".wav"
	case strings.Contains(t, "mp3") || strings.Contains(t, "mpeg"):
		return ".mp3"
	case strings.Contains(t, "mp4"), strings.Contains(t, "m4a"):
		return ".m4a"
	}
	return ""
}

// sniffExt guesses the container from the byte signature. Browser capture is
// webm far more often than not, so that is the default guess.
func sniffExt(data []byte) string {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ".webm"
	case bytes.HasPrefix(data, []byte("OggS")):
		return ".ogg"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ".wav"
	case bytes.HasPrefix(data, []byte("ID3")):
		return ".mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ".mp3"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return ".m4a"
	}
	return ".webm"
}
