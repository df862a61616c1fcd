// Package server wires HTTP handlers into a ServeMux for the presence
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health checks, the WebSocket endpoint, state
// inspection, and the test page.
func SetupRoutes(hub *Hub, dispatcher Dispatcher) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub, dispatcher))
	mux.HandleFunc("/stats", StatsHandler(hub, dispatcher))
	mux.HandleFunc("/history", HistoryHandler(dispatcher))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
