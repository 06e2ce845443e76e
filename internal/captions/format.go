package captions

import (
	"fmt"
	"strings"
	"time"

	"meet-coordinator/internal/store"
)

// Transcript export formats.
const (
	FormatTXT = "txt"
	FormatSRT = "srt"
	FormatVTT = "vtt"
)

// FormatTranscript renders a persisted caption log for download. Cue times in
// srt/vtt are offsets from the first segment's timestamp; txt keeps absolute
// timestamps. Unknown formats return an error.
func FormatTranscript(segs []store.CaptionSegment, format string) (string, error) {
	switch format {
	case FormatTXT:
		return formatTXT(segs), nil
	case FormatSRT:
		return formatSRT(segs), nil
	case FormatVTT:
		return formatVTT(segs), nil
	default:
		return "", fmt.Errorf("unknown transcript format %q", format)
	}
}

// ContentType returns the MIME type for a transcript format, defaulting to
// plain text.
func ContentType(format string) string {
	switch format {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	default:
		return "text/plain; charset=utf-8"
	}
}

func formatTXT(segs []store.CaptionSegment) string {
	var b strings.Builder
	for _, seg := range segs {
		speaker := seg.SpeakerName
		if speaker == "" {
			speaker = "Unknown"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", seg.Timestamp.UTC().Format(time.RFC3339), speaker, seg.Text)
	}
	return b.String()
}

func formatSRT(segs []store.CaptionSegment) string {
	var b strings.Builder
	base := baseTime(segs)
	for i, seg := range segs {
		start, end := cueRange(base, seg)
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, cueTime(start, ","), cueTime(end, ","), seg.Text)
	}
	return b.String()
}

func formatVTT(segs []store.CaptionSegment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	base := baseTime(segs)
	for _, seg := range segs {
		start, end := cueRange(base, seg)
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", cueTime(start, "."), cueTime(end, "."), seg.Text)
	}
	return b.String()
}

func baseTime(segs []store.CaptionSegment) time.Time {
	if len(segs) == 0 {
		return time.Time{}
	}
	return segs[0].Timestamp
}

// cueRange maps a segment to offsets within the transcript; end extends past
// start by the recognized duration.
func cueRange(base time.Time, seg store.CaptionSegment) (time.Duration, time.Duration) {
	start := seg.Timestamp.Sub(base)
	if start < 0 {
		start = 0
	}
	end := start + time.Duration(seg.Duration*float64(time.Second))
	return start, end
}

// cueTime renders HH:MM:SS<sep>mmm, the shared shape of srt ("," separator)
// and vtt (".") cue timestamps.
func cueTime(d time.Duration, sep string) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	ms := int(d/time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}
