package handlers

import (
	"net/http"

	"tollbooth/backend/services/toll-controller/internal/service"
)

// LedgerHealth reports whether the ledger file is behind memory.
type LedgerHealth interface {
	Dirty() bool
	LastError() error
	Len() int
}

type healthResponse struct {
	Status        string               `json:"status"`
	Device        service.DeviceStatus `json:"device"`
	LedgerRecords int                  `json:"ledger_records"`
	LedgerDirty   bool                 `json:"ledger_dirty"`
	LedgerError   string               `json:"ledger_error,omitempty"`
}

// NewHealthHandler returns GET /health handler. The booth is degraded (503) while the ledger
// has an unwritten change or the device is lost.
func NewHealthHandler(state StatusReader, store LedgerHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := state.Snapshot()
		resp := healthResponse{
			Status:        "ok",
			Device:        snap.Device,
			LedgerRecords: store.Len(),
			LedgerDirty:   store.Dirty(),
		}
		if err := store.LastError(); err != nil {
			resp.LedgerError = err.Error()
		}

		code := http.StatusOK
		if resp.LedgerDirty || snap.Device == service.DeviceLost {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
