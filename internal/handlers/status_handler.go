package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(h.startedAt).String(),
	})
}
