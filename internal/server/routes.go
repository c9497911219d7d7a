package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route: one monitor selector per connection
	mux.HandleFunc("/ws/monitor", s.app.MonitorHandler.HandleWebSocket)

	// API routes
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	return mux
}
