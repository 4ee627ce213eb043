package api

import (
	"net/http"

	"github.com/bookline-ai/gatekeeper/internal/session"
)

// tenantSession looks up a session and checks it belongs to the caller's
// tenant. A foreign session reads as not-found so ids never leak across
// tenants.
func (d *Dependencies) tenantSession(w http.ResponseWriter, r *http.Request) *session.Session {
	tenant := tenantFromContext(r.Context())
	if tenant == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing tenant context"})
		return nil
	}

	sess := d.Sessions.Get(r.PathValue("session_id"))
	if sess == nil || sess.TenantID != tenant.TenantID {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "session not found"})
		return nil
	}
	return sess
}

// handleBeginTurn implements POST /v1/sessions/{session_id}/turns.
// Marks a turn boundary: turn counters reset, pending soft confirmations age.
func (d *Dependencies) handleBeginTurn(w http.ResponseWriter, r *http.Request) {
	sess := d.tenantSession(w, r)
	if sess == nil {
		return
	}

	d.FrontDoor.BeginTurn(sess)
	writeJSON(w, http.StatusOK, TurnResp{SessionID: sess.ID, Status: "turn_started"})
}

// handleSessionStats implements GET /v1/sessions/{session_id}/stats.
func (d *Dependencies) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	sess := d.tenantSession(w, r)
	if sess == nil {
		return
	}

	stats := sess.Limiter.Stats()
	writeJSON(w, http.StatusOK, SessionStatsResp{
		SessionID:     sess.ID,
		TenantID:      sess.TenantID,
		AgentType:     sess.AgentType,
		CreatedAt:     sess.CreatedAt,
		TurnCounts:    stats.Turn,
		SessionCounts: stats.Session,
	})
}

// handleEndSession implements DELETE /v1/sessions/{session_id}.
// All counters and pending confirmations are discarded with the session.
func (d *Dependencies) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess := d.tenantSession(w, r)
	if sess == nil {
		return
	}

	d.Sessions.End(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}
