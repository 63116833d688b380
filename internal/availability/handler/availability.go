package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"serein/internal/availability/service"
	apperrors "serein/pkg/errors"
	httputil "serein/pkg/http"
	"serein/pkg/logger"
)

type AvailabilityHandler struct {
	resolver service.Resolver
	log      *logger.Logger
}

func NewAvailabilityHandler(resolver service.Resolver, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		resolver: resolver,
		log:      log,
	}
}

// Resolve answers GET /api/v1/therapists/:id/slots?date=2026-03-09. The
// optional requester_id marks slots held by the caller's own lock.
func (h *AvailabilityHandler) Resolve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	therapistID := ps.ByName("id")
	query := r.URL.Query()

	dateStr := query.Get("date")
	if dateStr == "" {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput("date query parameter is required")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Resolve", "operation", "WriteError", "error", writeErr)
		}
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput(fmt.Sprintf("invalid date parameter: %s", dateStr))); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Resolve", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slots, err := h.resolver.Resolve(r.Context(), therapistID, date, query.Get("requester_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Resolve", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, slots); err != nil {
		h.log.Error("failed to write success response", "handler", "Resolve", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/therapists/:id/slots", h.Resolve)
}
