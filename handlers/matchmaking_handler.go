package handlers

import (
	"net/http"

	"github.com/arenaworks/wager-arena/middleware"
	"github.com/arenaworks/wager-arena/services"
)

type MatchmakingHandler struct {
	matchmakingService services.MatchmakingService
}

func NewMatchmakingHandler(matchmakingService services.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{matchmakingService: matchmakingService}
}

func (h *MatchmakingHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.JoinQueueInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.matchmakingService.Join(r.Context(), userID, input); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"status": "queued"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchmakingHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	h.matchmakingService.Leave(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MatchmakingHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts := h.matchmakingService.Counts(r.Context())

	// QueueKey is a struct key, so render it as a string for JSON.
	view := make(map[string]int, len(counts))
	for key, n := range counts {
		view[key.String()] = n
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"queues": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
