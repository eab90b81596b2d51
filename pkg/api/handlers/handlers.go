package handlers

import (
	"context"
	"errors"
	"net/http"

	"forkchat/pkg/llm"
	"forkchat/pkg/models"
	"forkchat/pkg/persist"
	"forkchat/pkg/store"
	"forkchat/pkg/utils"
)

// Streamer is the model gateway surface the chat handler needs. Satisfied
// by *llm.Client; tests substitute fakes.
type Streamer interface {
	Stream(ctx context.Context, messages []llm.ChatMessage, p llm.Params, emit func(delta string) error) error
}

// Handlers carries the dependencies every route needs. Constructed once at
// startup and passed explicitly; there is no ambient global state.
type Handlers struct {
	Store   *store.Store
	Persist *persist.Gateway
	// Model may be nil when no upstream credential is configured; chat
	// requests then fail with 503 while the rest of the API keeps working.
	Model Streamer
}

// writeErr maps store and gateway errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var ue *llm.UpstreamError
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidState):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrSerialization):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ue):
		utils.JSONError(w, http.StatusBadGateway, ue.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
