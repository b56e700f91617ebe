package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/service"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 1000
	defaultStatsDays        = 7
	maxStatsDays            = 90
)

// StatusReader supplies status snapshots.
type StatusReader interface {
	Snapshot() service.StatusSnapshot
}

// LedgerReader is the read side of the ledger.
type LedgerReader interface {
	Snapshot() []ledger.Record
	Recent(limit int) []ledger.Record
	Len() int
}

// StatusHandlers serves the read-only booth views.
type StatusHandlers struct {
	state  StatusReader
	store  LedgerReader
	now    func() time.Time
	logger *zap.Logger
}

// NewStatusHandlers returns handlers.
func NewStatusHandlers(state StatusReader, store LedgerReader, now func() time.Time, logger *zap.Logger) *StatusHandlers {
	if now == nil {
		now = time.Now
	}
	return &StatusHandlers{state: state, store: store, now: now, logger: logger}
}

// Status handles GET /api/v1/status.
func (h *StatusHandlers) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	resp := struct {
		service.StatusSnapshot
		TransactionText string `json:"transaction_text,omitempty"`
	}{StatusSnapshot: snap}
	if snap.LastTransaction != nil {
		resp.TransactionText = snap.LastTransaction.Text()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transactions handles GET /api/v1/transactions, newest first.
func (h *StatusHandlers) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultTransactionLimit, maxTransactionLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	recs := h.store.Recent(limit)
	if recs == nil {
		recs = []ledger.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": recs,
		"total":        h.store.Len(),
	})
}

// Stats handles GET /api/v1/stats.
func (h *StatusHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(r, "days", defaultStatsDays, maxStatsDays)
	if !ok {
		writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}
	writeJSON(w, http.StatusOK, ledger.Summarize(h.store.Snapshot(), h.now(), days))
}

// LatestCapture handles GET /api/v1/captures/latest and streams the last captured image.
func (h *StatusHandlers) LatestCapture(w http.ResponseWriter, r *http.Request) {
	path := h.state.Snapshot().LatestImage
	if path == "" {
		writeError(w, http.StatusNotFound, "no image captured yet")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "image file missing")
			return
		}
		h.logger.Error("open captured image", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
