package storage

import "time"

// EventWriter is the interface for persisting admission decisions.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *AdmissionEvent)
	Close()
}

// AdmissionEvent is one tool-call admission attempt and its verdict.
type AdmissionEvent struct {
	RequestID    string
	Timestamp    time.Time
	TenantID     string
	SessionID    string
	AgentType    string
	CallerIP     string
	ToolName     string
	ArgsDigest   string
	Tier         string // "read", "write", "destructive"
	Outcome      string // "admitted", "denied", "needs_confirmation"
	Stage        string // denying stage, empty when admitted
	Reason       string
	ConfirmKind  string // "soft" or "hard" when confirmation is required
	Confirmed    bool
	Shadow       bool // decision reported as admitted despite Outcome
	TurnCount    int32
	SessionCount int32
	RetryAfterMs int64
	LatencyMs    float32
}
