package analytics

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
)

type Handler struct {
	session         *Session
	maxSnapshotSize int64
	logger          *slog.Logger
}

func NewHandler(session *Session, maxSnapshotSize int64) *Handler {
	if maxSnapshotSize <= 0 {
		maxSnapshotSize = 256 << 20
	}
	return &Handler{
		session:         session,
		maxSnapshotSize: maxSnapshotSize,
		logger:          logger.WithComponent("analytics-handler"),
	}
}

// Register mounts the API routes on mux. The upload middlewares wrap only the
// snapshot route, innermost last.
func (h *Handler) Register(mux *http.ServeMux, upload ...func(http.Handler) http.Handler) {
	var load http.Handler = http.HandlerFunc(h.LoadSnapshot)
	for i := len(upload) - 1; i >= 0; i-- {
		load = upload[i](load)
	}
	mux.Handle("POST /api/v1/snapshot", load)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/categories", h.Categories)
	mux.HandleFunc("GET /api/v1/series", h.Series)
	mux.HandleFunc("GET /api/v1/series/rows", h.Rows)
}

func (h *Handler) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxSnapshotSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "snapshot exceeds size limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	snap, err := dataset.Decode(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := h.session.Load(ctx, snap)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(ctx).Info("snapshot accepted",
		"snapshot_id", status.SnapshotID,
		"rows", status.Rows,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	labels, err := h.session.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"categories": labels})
}

func (h *Handler) Series(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g := calendar.Parse(q.Get("granularity"))
	series, err := h.session.Select(r.Context(), q.Get("category"), g)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, series)
}

func (h *Handler) Rows(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'key' is required")
		return
	}
	ids, err := h.session.Drill(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"key": key, "rowIds": ids})
}

// fail maps err to its status code. Superseded and user-facing conditions
// are expected outcomes and are not logged as errors.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	switch {
	case IsSuperseded(err):
		log.Debug("request superseded", "path", r.URL.Path)
	case status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrNotReady):
		log.Error("request failed", "path", r.URL.Path, "error", err)
	default:
		log.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeError(w, status, apperrors.UserMessage(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
