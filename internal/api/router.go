package api

import (
	"net/http"

	"github.com/bookline-ai/gatekeeper/internal/auth"
	"github.com/bookline-ai/gatekeeper/internal/gateway"
	"github.com/bookline-ai/gatekeeper/internal/session"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Auth      auth.Authenticator
	Sessions  *session.Manager
	FrontDoor *gateway.FrontDoor
	Logger    *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Admission endpoint (auth required via Bearer agk_ token)
	mux.HandleFunc("POST /v1/admit", deps.authMiddleware(deps.handleAdmit))

	// Session lifecycle (same auth; sessions are tenant-scoped)
	mux.HandleFunc("POST /v1/sessions/{session_id}/turns", deps.authMiddleware(deps.handleBeginTurn))
	mux.HandleFunc("GET /v1/sessions/{session_id}/stats", deps.authMiddleware(deps.handleSessionStats))
	mux.HandleFunc("DELETE /v1/sessions/{session_id}", deps.authMiddleware(deps.handleEndSession))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
