// Package gateway composes the admission pipeline every agent tool call must
// pass before it is allowed to execute: traffic ceilings, the trust-tier
// execution gate, then per-tool rate limits. The gateway only decides — it
// never executes tools and never retries on the caller's behalf.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/gate"
	"github.com/bookline-ai/gatekeeper/internal/policy"
	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"github.com/bookline-ai/gatekeeper/internal/session"
	"github.com/bookline-ai/gatekeeper/internal/storage"
	"github.com/bookline-ai/gatekeeper/internal/traffic"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FrontDoor runs one admission pipeline per tool-call attempt and exposes
// the turn/session lifecycle hooks the surrounding agent loop drives.
type FrontDoor struct {
	traffic  *traffic.Limiter
	resolver policy.Resolver
	writer   storage.EventWriter
	logger   *zap.Logger
}

// New creates a FrontDoor over the shared traffic limiter and policy source.
func New(trafficLimiter *traffic.Limiter, resolver policy.Resolver, writer storage.EventWriter, logger *zap.Logger) *FrontDoor {
	return &FrontDoor{
		traffic:  trafficLimiter,
		resolver: resolver,
		writer:   writer,
		logger:   logger,
	}
}

// BeginTurn marks a turn boundary for the session. Called once per model
// thinking step that may emit tool calls.
func (f *FrontDoor) BeginTurn(sess *session.Session) {
	sess.BeginTurn()
}

// AdmitRequest is one tool-call admission attempt.
type AdmitRequest struct {
	Session    *session.Session
	TenantID   string
	CallerIP   string
	Tool       string
	ArgsJSON   string
	ArgsDigest string // computed from ArgsJSON when empty
	Confirmed  bool
	// TenantMode is "enforce" or "shadow"; in shadow mode non-admit
	// decisions are flagged for admitted reporting but persisted as-is.
	TenantMode string
}

// AdmitToolCall evaluates the stages in order — traffic, execution gate,
// tool rate limit — short-circuiting on the first failure. Earlier stages
// never need undoing on a later denial: traffic charges atomically only on
// its own pass, and the tool call is recorded only when every stage passes.
func (f *FrontDoor) AdmitToolCall(ctx context.Context, req AdmitRequest) AdmissionResult {
	start := time.Now()
	digest := req.ArgsDigest
	if digest == "" {
		digest = ArgsDigest(req.ArgsJSON)
	}

	result := f.evaluate(ctx, req, digest)
	result.RequestID = uuid.New().String()
	if req.TenantMode == "shadow" && result.Outcome != OutcomeAdmitted {
		result.Shadow = true
	}

	f.writeEvent(req, digest, result, time.Since(start))
	return result
}

func (f *FrontDoor) evaluate(ctx context.Context, req AdmitRequest, digest string) AdmissionResult {
	sess := req.Session

	// Stage 1: shared traffic ceilings — cheapest, highest-volume reject.
	if d := f.traffic.CheckAndRecord(req.TenantID, req.CallerIP); !d.Allowed {
		return AdmissionResult{
			Outcome:    OutcomeDenied,
			Stage:      StageTraffic,
			Reason:     fmt.Sprintf("traffic ceiling reached (%s)", d.Scope),
			RetryAfter: d.RetryAfter,
		}
	}

	// Resolve the tool's policy. An undeclared tool is a deployment defect:
	// logged loudly, denied, never silently allowed through.
	pol, err := f.resolver.ResolveTool(ctx, req.TenantID, sess.AgentType, req.Tool)
	if err != nil {
		f.logger.Error("policy resolution failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("agent_type", sess.AgentType),
			zap.String("tool_name", req.Tool),
			zap.Error(err),
		)
		return denied(StageGate, "policy resolution failed", 0)
	}
	if pol == nil {
		blocked := gate.Blocked(sess.AgentType, req.Tool)
		f.logger.Error("tool call blocked: no trust tier assignment",
			zap.String("tenant_id", req.TenantID),
			zap.String("agent_type", sess.AgentType),
			zap.String("tool_name", req.Tool),
		)
		return denied(StageGate, blocked.Reason, 0)
	}

	// Stage 1.5: argument schema, when the policy declares one.
	if pol.ArgumentSchema != nil {
		if err := pol.ValidateArgs(req.ArgsJSON); err != nil {
			return denied(StageArguments, err.Error(), pol.Tier)
		}
	}

	// Stage 2: trust-tier execution gate.
	gd := sess.Pending.Evaluate(pol.Tier, req.Tool, digest, req.Confirmed)
	switch gd.Kind {
	case gate.DecisionExecute:
		// fall through to rate limiting
	case gate.DecisionSoftConfirm:
		return needsConfirmation(ConfirmSoft, gd.Hint, pol.Tier)
	case gate.DecisionHardConfirm:
		return needsConfirmation(ConfirmHard, gd.TokenPhrase, pol.Tier)
	default:
		return denied(StageGate, gd.Reason, pol.Tier)
	}

	// Stage 3: per-tool rate limits, probe then commit.
	var rd ratelimit.Decision
	if pol.Limits != nil {
		rd = sess.Limiter.CanCallSpec(req.Tool, *pol.Limits)
	} else {
		rd = sess.Limiter.CanCall(req.Tool)
	}
	if !rd.Allowed {
		return denied(StageRateLimit, rd.Reason, pol.Tier)
	}

	sess.Limiter.RecordCall(req.Tool)
	return admitted(pol.Tier)
}

func (f *FrontDoor) writeEvent(req AdmitRequest, digest string, result AdmissionResult, latency time.Duration) {
	if f.writer == nil {
		return
	}
	stats := req.Session.Limiter.Stats()
	f.writer.Write(&storage.AdmissionEvent{
		RequestID:    result.RequestID,
		Timestamp:    time.Now(),
		TenantID:     req.TenantID,
		SessionID:    req.Session.ID,
		AgentType:    req.Session.AgentType,
		CallerIP:     req.CallerIP,
		ToolName:     req.Tool,
		ArgsDigest:   digest,
		Tier:         result.Tier.String(),
		Outcome:      string(result.Outcome),
		Stage:        string(result.Stage),
		Reason:       result.Reason,
		ConfirmKind:  string(result.ConfirmKind),
		Confirmed:    req.Confirmed,
		Shadow:       result.Shadow,
		TurnCount:    int32(stats.Turn[req.Tool]),
		SessionCount: int32(stats.Session[req.Tool]),
		RetryAfterMs: result.RetryAfter.Milliseconds(),
		LatencyMs:    float32(float64(latency) / float64(time.Millisecond)),
	})
}

// ArgsDigest derives the canonical digest for a tool call's raw arguments.
func ArgsDigest(argsJSON string) string {
	sum := sha256.Sum256([]byte(argsJSON))
	return hex.EncodeToString(sum[:])
}
