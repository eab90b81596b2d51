package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"forkchat/pkg/models"
	"forkchat/pkg/utils"
)

// RegisterContext registers resolved-context and context-curation routes.
func RegisterContext(r *mux.Router, h *Handlers) {
	r.HandleFunc("/threads/{id}/context", h.resolveContext).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}/context/threads", h.addContextThread).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/context/threads/{tid}", h.removeContextThread).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id}/context/messages", h.addContextMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/context/messages/{mid}", h.removeContextMessage).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id}/context/excluded", h.excludeMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/context/excluded/{mid}", h.includeMessage).Methods(http.MethodDelete)
}

// resolveContext handles GET /threads/{id}/context, returning the exact
// message list the model would receive for the thread's next turn.
func (h *Handlers) resolveContext(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["id"]
	msgs, err := h.Store.ResolveContext(threadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		ThreadID string           `json:"threadId"`
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}{ThreadID: threadID, Messages: msgs, Count: len(msgs)})
}

type contextThreadRequest struct {
	ThreadID string `json:"threadId"`
}

func (h *Handlers) addContextThread(w http.ResponseWriter, r *http.Request) {
	var req contextThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ThreadID == "" {
		utils.JSONError(w, http.StatusBadRequest, "threadId is required")
		return
	}
	if err := h.Store.AddContextThread(mux.Vars(r)["id"], req.ThreadID); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"added": true})
}

func (h *Handlers) removeContextThread(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Store.RemoveContextThread(vars["id"], vars["tid"]); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"removed": true})
}

type contextMessageRequest struct {
	MessageID string `json:"messageId"`
}

func (h *Handlers) addContextMessage(w http.ResponseWriter, r *http.Request) {
	var req contextMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		utils.JSONError(w, http.StatusBadRequest, "messageId is required")
		return
	}
	if err := h.Store.AddContextMessage(mux.Vars(r)["id"], req.MessageID); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"pinned": true})
}

func (h *Handlers) removeContextMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Store.RemoveContextMessage(vars["id"], vars["mid"]); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"unpinned": true})
}

func (h *Handlers) excludeMessage(w http.ResponseWriter, r *http.Request) {
	var req contextMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		utils.JSONError(w, http.StatusBadRequest, "messageId is required")
		return
	}
	if err := h.Store.ExcludeMessage(mux.Vars(r)["id"], req.MessageID); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"excluded": true})
}

func (h *Handlers) includeMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Store.IncludeMessage(vars["id"], vars["mid"]); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"included": true})
}
