package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/syncroom/internal/service"
)

type envelope map[string]any

func (c controller) writeJSON(w http.ResponseWriter, r *http.Request, status int, data envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func (c controller) healthz(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, r, http.StatusOK, envelope{
		"status": "OK",
		"rooms":  c.service.RoomsCount(),
	})
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	info, err := c.service.GetRoom(r.Context(), roomId)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.writeJSON(w, r, http.StatusNotFound, envelope{"error": errorCode(err)})
			return
		}

		c.logger.WarnContext(r.Context(), "failed to get room", "error", err)
		c.writeJSON(w, r, http.StatusInternalServerError, envelope{"error": errorCode(err)})
		return
	}

	c.writeJSON(w, r, http.StatusOK, envelope{"data": info})
}
