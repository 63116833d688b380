package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"serein/internal/locks/service"
	httputil "serein/pkg/http"
	"serein/pkg/logger"
)

type lockRequest struct {
	TherapistID  string    `json:"therapist_id"`
	SlotDatetime time.Time `json:"slot_datetime"`
	RequesterID  string    `json:"requester_id"`
}

type LockHandler struct {
	service service.LockManager
	log     *logger.Logger
}

func NewLockHandler(service service.LockManager, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service: service,
		log:     log,
	}
}

// Acquire also serves renewal: a holder re-acquiring its own slot extends
// the lease.
func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Acquire", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	lock, err := h.service.Acquire(r.Context(), req.TherapistID, req.SlotDatetime, req.RequesterID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Acquire", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, lock); err != nil {
		h.log.Error("failed to write created response", "handler", "Acquire", "operation", "WriteCreated", "error", err)
	}
}

func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Release", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Release(r.Context(), req.TherapistID, req.SlotDatetime, req.RequesterID); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Release", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LockHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/locks", h.Acquire)
	router.POST("/api/v1/locks/release", h.Release)
}
