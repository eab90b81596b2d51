package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"forkchat/pkg/models"
	"forkchat/pkg/store"
	"forkchat/pkg/utils"
)

// RegisterThreads registers thread CRUD and hierarchy routes.
func RegisterThreads(r *mux.Router, h *Handlers) {
	r.HandleFunc("/threads", h.createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads", h.listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", h.getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", h.updateThread).Methods(http.MethodPut)
	r.HandleFunc("/threads/{id}", h.deleteThread).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id}/hierarchy", h.threadHierarchy).Methods(http.MethodGet)
}

type createThreadRequest struct {
	SeedText       string `json:"seedText,omitempty"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	ParentThreadID string `json:"parentThreadId,omitempty"`
	AsMainThread   bool   `json:"asMainThread,omitempty"`
}

// createThread handles POST /threads. The body selects one of the two
// creation variants: seedText quick-creates a thread around a seed message;
// otherwise name/description create a named thread.
func (h *Handlers) createThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SeedText == "" && req.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "seedText or name is required")
		return
	}
	id, err := h.Store.CreateThread(store.NewThreadOptions{
		SeedText:       req.SeedText,
		Name:           req.Name,
		Description:    req.Description,
		ParentThreadID: req.ParentThreadID,
		AsMainThread:   req.AsMainThread,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	t, err := h.Store.Thread(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, t)
}

// listThreads handles GET /threads, ordered by level then name for stable
// sidebar rendering.
func (h *Handlers) listThreads(w http.ResponseWriter, r *http.Request) {
	threads := h.Store.Threads()
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].Level != threads[j].Level {
			return threads[i].Level < threads[j].Level
		}
		if threads[i].Name != threads[j].Name {
			return threads[i].Name < threads[j].Name
		}
		return threads[i].ID < threads[j].ID
	})
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []*models.Thread `json:"threads"`
	}{Threads: threads})
}

func (h *Handlers) getThread(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.Thread(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func (h *Handlers) updateThread(w http.ResponseWriter, r *http.Request) {
	var upd store.ThreadUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.Store.UpdateThread(id, upd); err != nil {
		writeErr(w, err)
		return
	}
	t, err := h.Store.Thread(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

// deleteThread handles DELETE /threads/{id}. Deletion cascades over all
// descendant threads and their messages; the main thread is protected.
func (h *Handlers) deleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteThread(mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handlers) threadHierarchy(w http.ResponseWriter, r *http.Request) {
	info, err := h.Store.Hierarchy(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, info)
}
