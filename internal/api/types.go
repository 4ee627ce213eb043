package api

import "time"

// --- POST /v1/admit request/response ---

// AdmitReq is the JSON body for POST /v1/admit.
type AdmitReq struct {
	SessionID     string `json:"session_id"`
	AgentType     string `json:"agent_type"`
	ToolName      string `json:"tool_name"`
	ArgumentsJSON string `json:"arguments_json,omitempty"`
	// ArgsDigest optionally overrides the server-computed SHA-256 of
	// ArgumentsJSON, for callers that canonicalize arguments themselves.
	ArgsDigest string `json:"args_digest,omitempty"`
	Confirmed  bool   `json:"confirmed,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// AdmitResp is the admission verdict returned to the agent loop.
type AdmitResp struct {
	Outcome      string  `json:"outcome"`
	Tier         string  `json:"tier"`
	RequestID    string  `json:"request_id"`
	IsShadow     bool    `json:"is_shadow"`
	Stage        string  `json:"stage,omitempty"`
	Reason       *string `json:"reason"`
	RetryAfterMs int64   `json:"retry_after_ms,omitempty"`
	ConfirmKind  string  `json:"confirm_kind,omitempty"`
	Hint         *string `json:"hint"`
	LatencyMs    float64 `json:"latency_ms"`
}

// --- Session lifecycle ---

// TurnResp is returned by POST /v1/sessions/{session_id}/turns.
type TurnResp struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// SessionStatsResp mirrors the session's live counters.
type SessionStatsResp struct {
	SessionID     string         `json:"session_id"`
	TenantID      string         `json:"tenant_id"`
	AgentType     string         `json:"agent_type"`
	CreatedAt     time.Time      `json:"created_at"`
	TurnCounts    map[string]int `json:"turn_counts"`
	SessionCounts map[string]int `json:"session_counts"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
