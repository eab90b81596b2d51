package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"forkchat/pkg/llm"
	"forkchat/pkg/logger"
	"forkchat/pkg/models"
	"forkchat/pkg/utils"
)

// RegisterChat registers the streaming chat route.
func RegisterChat(r *mux.Router, h *Handlers) {
	r.HandleFunc("/threads/{id}/chat", h.chat).Methods(http.MethodPost)
}

type chatRequest struct {
	Content string `json:"content"`
}

type chatEvent struct {
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Done      bool   `json:"done,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// chat handles POST /threads/{id}/chat: appends the user turn, resolves the
// thread's context, streams the model reply back as line-delimited JSON
// events, and appends the assistant turn when the stream ends. An upstream
// failure becomes a visible assistant-turn error message, never a crash.
func (h *Handlers) chat(w http.ResponseWriter, r *http.Request) {
	if h.Model == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "model gateway not configured")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		utils.JSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	threadID := mux.Vars(r)["id"]

	if _, err := h.Store.AddMessage(threadID, req.Content, models.RoleUser); err != nil {
		writeErr(w, err)
		return
	}
	ctxMsgs, err := h.Store.ResolveContext(threadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	chatMsgs := make([]llm.ChatMessage, len(ctxMsgs))
	for i, m := range ctxMsgs {
		chatMsgs[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	settings := h.Store.Settings()
	params := llm.Params{
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		ShowThinking: settings.ShowThinkingMode,
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	send := func(ev chatEvent) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	var reply strings.Builder
	streamErr := h.Model.Stream(r.Context(), chatMsgs, params, func(delta string) error {
		reply.WriteString(delta)
		return send(chatEvent{Content: delta})
	})

	if streamErr != nil {
		logger.Error("chat_stream_failed", "thread", threadID, "error", streamErr)
		// record the failure as an assistant turn so the conversation shows it
		errText := "Error: " + streamErr.Error()
		if id, err := h.Store.AddMessage(threadID, errText, models.RoleAssistant); err == nil {
			_ = send(chatEvent{Error: streamErr.Error(), Done: true, MessageID: id})
		} else {
			_ = send(chatEvent{Error: streamErr.Error(), Done: true})
		}
		return
	}

	id, err := h.Store.AddMessage(threadID, reply.String(), models.RoleAssistant)
	if err != nil {
		_ = send(chatEvent{Error: err.Error(), Done: true})
		return
	}
	_ = send(chatEvent{Done: true, MessageID: id})
}
