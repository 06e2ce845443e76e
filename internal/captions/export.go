package captions

import (
	"log/slog"
	"net/http"

	"meet-coordinator/internal/store"

	"github.com/go-chi/chi/v5"
)

// Exporter serves persisted transcripts for download.
type Exporter struct {
	store store.Store
	log   *slog.Logger
}

// NewExporter returns an Exporter over the given store.
func NewExporter(st store.Store, log *slog.Logger) *Exporter {
	return &Exporter{store: st, log: log}
}

// Transcript handles GET /meetings/{meeting_id}/transcript?format=txt|srt|vtt.
// Default format is txt. A meeting with no captions yields an empty document,
// not a 404, since the caption log is created lazily.
func (e *Exporter) Transcript(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meeting_id")
	if meetingID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatTXT
	}

	segs, err := e.store.ListCaptions(r.Context(), meetingID)
	if err != nil {
		e.log.Error("list captions failed",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	doc, err := FormatTranscript(segs, format)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", ContentType(format))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}
