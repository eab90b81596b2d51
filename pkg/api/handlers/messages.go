package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"forkchat/pkg/models"
	"forkchat/pkg/utils"
)

// RegisterMessages registers message CRUD and fork routes.
func RegisterMessages(r *mux.Router, h *Handlers) {
	r.HandleFunc("/threads/{threadID}/messages", h.createMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", h.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", h.editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/fork", h.forkMessage).Methods(http.MethodPost)
}

type createMessageRequest struct {
	Content string      `json:"content"`
	Role    models.Role `json:"role,omitempty"`
}

func (h *Handlers) createMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		utils.JSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAssistant {
		utils.JSONError(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}
	id, err := h.Store.AddMessage(mux.Vars(r)["threadID"], req.Content, role)
	if err != nil {
		writeErr(w, err)
		return
	}
	m, err := h.Store.Message(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	msgs, err := h.Store.ThreadMessages(threadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		ThreadID string           `json:"threadId"`
		Messages []models.Message `json:"messages"`
	}{ThreadID: threadID, Messages: msgs})
}

func (h *Handlers) getMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.Message(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) editMessage(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.Store.EditMessage(id, req.Content); err != nil {
		writeErr(w, err)
		return
	}
	m, err := h.Store.Message(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteMessage(mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"deleted": true})
}

type forkRequest struct {
	Name string `json:"name,omitempty"`
}

// forkMessage handles POST /messages/{id}/fork, spawning a new thread
// anchored to the message.
func (h *Handlers) forkMessage(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if r.Body != nil {
		// body is optional for forks
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	id, err := h.Store.ForkMessage(mux.Vars(r)["id"], req.Name)
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
