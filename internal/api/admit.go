package api

import (
	"net/http"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/gateway"
)

// handleAdmit implements POST /v1/admit.
// Auth middleware has already validated the Bearer token and injected the tenant.
func (d *Dependencies) handleAdmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AdmitReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "session_id is required"})
		return
	}
	if req.AgentType == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "agent_type is required"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}

	tenant := tenantFromContext(r.Context())
	if tenant == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing tenant context"})
		return
	}

	sess := d.Sessions.GetOrCreate(req.SessionID, tenant.TenantID, req.AgentType)
	// A session is exclusively owned by the tenant that opened it: a foreign
	// id reads as not-found, never as an attach. Without this, another tenant
	// could charge the owner's session counters or release its pending
	// confirmations.
	if sess.TenantID != tenant.TenantID {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "session not found"})
		return
	}
	if sess.AgentType != req.AgentType {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "agent_type does not match session"})
		return
	}

	result := d.FrontDoor.AdmitToolCall(r.Context(), gateway.AdmitRequest{
		Session:    sess,
		TenantID:   tenant.TenantID,
		CallerIP:   clientIP(r),
		Tool:       req.ToolName,
		ArgsJSON:   req.ArgumentsJSON,
		ArgsDigest: req.ArgsDigest,
		Confirmed:  req.Confirmed,
		TenantMode: tenant.Mode,
	})

	// Shadow mode: the caller sees an admit while the real verdict is
	// persisted for the tenant's dry-run report.
	outcome := result.Outcome
	if result.Shadow {
		outcome = gateway.OutcomeAdmitted
	}

	var reason *string
	if result.Reason != "" {
		reason = &result.Reason
	}
	var hint *string
	if result.Hint != "" {
		hint = &result.Hint
	}

	writeJSON(w, http.StatusOK, AdmitResp{
		Outcome:      string(outcome),
		Tier:         result.Tier.String(),
		RequestID:    result.RequestID,
		IsShadow:     result.Shadow,
		Stage:        string(result.Stage),
		Reason:       reason,
		RetryAfterMs: result.RetryAfter.Milliseconds(),
		ConfirmKind:  string(result.ConfirmKind),
		Hint:         hint,
		LatencyMs:    float64(time.Since(start)) / float64(time.Millisecond),
	})
}
