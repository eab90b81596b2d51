package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"forkchat/pkg/logger"
	"forkchat/pkg/models"
	"forkchat/pkg/utils"
)

// RegisterSnapshot registers settings, export/import, and clear routes.
func RegisterSnapshot(r *mux.Router, h *Handlers) {
	r.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.putSettings).Methods(http.MethodPut)
	r.HandleFunc("/export", h.exportSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/import", h.importSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/clear", h.clear).Methods(http.MethodPost)
}

func (h *Handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, h.Store.Settings())
}

func (h *Handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var s models.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		utils.JSONError(w, http.StatusBadRequest, "temperature must be between 0 and 2")
		return
	}
	if s.MaxTokens <= 0 {
		utils.JSONError(w, http.StatusBadRequest, "maxTokens must be positive")
		return
	}
	if s.MaxContextMessages != nil && *s.MaxContextMessages <= 0 {
		utils.JSONError(w, http.StatusBadRequest, "maxContextMessages must be positive or null")
		return
	}
	h.Store.UpdateSettings(s)
	_ = utils.JSONWrite(w, http.StatusOK, h.Store.Settings())
}

// exportSnapshot handles GET /export, serving the full snapshot as a
// download with export metadata attached.
func (h *Handlers) exportSnapshot(w http.ResponseWriter, r *http.Request) {
	b, err := h.Persist.Export()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="forkchat-export.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// importSnapshot handles POST /import. The payload must carry threads and
// messages keys; validation failure leaves the current state untouched.
// Debounced autosave is suspended while the store is replaced so a partial
// write can never race the import.
func (h *Handlers) importSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 256<<20))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	snap, err := h.Persist.Import(body)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.Persist.Suspend()
	h.Store.ReplaceAll(snap)
	h.Persist.Resume()
	if err := h.Persist.Save(); err != nil {
		logger.Error("import_save_failed", "error", err)
	}
	logger.Info("snapshot_imported", "threads", len(snap.Threads), "messages", len(snap.Messages))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{
		"threads":  len(snap.Threads),
		"messages": len(snap.Messages),
	})
}

// clear handles POST /clear: wipes both persisted and in-memory state, then
// re-creates the main thread so the client has somewhere to type.
func (h *Handlers) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Persist.Clear(); err != nil {
		writeErr(w, err)
		return
	}
	h.Store.Reset()
	mainID := h.Store.Bootstrap("Main Thread")
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"mainThreadId": mainID})
}
