package gateway

import (
	"time"

	"github.com/bookline-ai/gatekeeper/internal/tiers"
)

// Outcome is the top-level admission verdict.
type Outcome string

const (
	OutcomeAdmitted          Outcome = "admitted"
	OutcomeDenied            Outcome = "denied"
	OutcomeNeedsConfirmation Outcome = "needs_confirmation"
)

// Stage names the pipeline stage a denial came from. The stage tells the
// agent loop which of the error kinds it is handling: traffic denials are
// back-off-and-retry, rate-limit denials wait for the next turn or the next
// session, argument denials are malformed calls, and gate denials are
// configuration defects.
type Stage string

const (
	StageTraffic   Stage = "traffic"
	StageArguments Stage = "arguments"
	StageGate      Stage = "gate"
	StageRateLimit Stage = "rate_limit"
)

// ConfirmKind distinguishes the two confirmation flows.
type ConfirmKind string

const (
	ConfirmSoft ConfirmKind = "soft"
	ConfirmHard ConfirmKind = "hard"
)

// AdmissionResult is the typed verdict for one tool-call attempt. Every
// branch of the error taxonomy is a result kind, never a thrown fault — the
// agent loop branches on Outcome and relays Reason/Hint to the model as a
// system observation, not to the end customer.
type AdmissionResult struct {
	Outcome Outcome
	Tier    tiers.Tier

	// RequestID correlates the result with its persisted admission event.
	RequestID string

	// Shadow marks a decision that should be reported as admitted even
	// though Outcome says otherwise: the tenant is dry-running the gateway
	// before turning on enforcement. Persisted with the real outcome.
	Shadow bool

	// Denied
	Stage      Stage
	Reason     string
	RetryAfter time.Duration

	// NeedsConfirmation
	ConfirmKind ConfirmKind
	Hint        string // soft: prompt hint; hard: the token phrase to supply
}

func admitted(tier tiers.Tier) AdmissionResult {
	return AdmissionResult{Outcome: OutcomeAdmitted, Tier: tier}
}

func denied(stage Stage, reason string, tier tiers.Tier) AdmissionResult {
	return AdmissionResult{Outcome: OutcomeDenied, Stage: stage, Reason: reason, Tier: tier}
}

func needsConfirmation(kind ConfirmKind, hint string, tier tiers.Tier) AdmissionResult {
	return AdmissionResult{Outcome: OutcomeNeedsConfirmation, ConfirmKind: kind, Hint: hint, Tier: tier}
}
