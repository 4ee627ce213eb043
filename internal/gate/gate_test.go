package gate

import (
	"testing"

	"github.com/bookline-ai/gatekeeper/internal/tiers"
)

func TestEvaluate_ReadAlwaysExecutes(t *testing.T) {
	r := NewRegister(0)

	for _, confirmed := range []bool{false, true} {
		d := r.Evaluate(tiers.TierRead, "get_services", "d1", confirmed)
		if d.Kind != DecisionExecute {
			t.Fatalf("read tier should always execute, got %v", d.Kind)
		}
	}
}

func TestEvaluate_WriteSoftConfirmFlow(t *testing.T) {
	r := NewRegister(0)

	// First sight of this digest: soft confirm, pending recorded.
	d := r.Evaluate(tiers.TierWrite, "create_booking", "d1", false)
	if d.Kind != DecisionSoftConfirm {
		t.Fatalf("expected soft confirm on first sight, got %v", d.Kind)
	}
	if d.Hint == "" {
		t.Fatal("soft confirm must carry a hint")
	}
	if p := r.Get("create_booking"); p == nil || p.Digest != "d1" {
		t.Fatalf("expected pending for d1, got %+v", p)
	}

	// Confirmed re-attempt with the same digest: execute, pending cleared.
	d = r.Evaluate(tiers.TierWrite, "create_booking", "d1", true)
	if d.Kind != DecisionExecute {
		t.Fatalf("expected execute after confirmation, got %v", d.Kind)
	}
	if r.Get("create_booking") != nil {
		t.Fatal("pending should be cleared after execution")
	}
}

func TestEvaluate_WriteDigestChangeResetsPending(t *testing.T) {
	r := NewRegister(0)

	r.Evaluate(tiers.TierWrite, "update_booking", "d1", false)

	// Different digest while d1 is pending: last call wins.
	d := r.Evaluate(tiers.TierWrite, "update_booking", "d2", false)
	if d.Kind != DecisionSoftConfirm {
		t.Fatalf("expected soft confirm for new digest, got %v", d.Kind)
	}
	if p := r.Get("update_booking"); p == nil || p.Digest != "d2" {
		t.Fatalf("pending should now track d2, got %+v", p)
	}

	// Confirming the stale digest must not execute.
	d = r.Evaluate(tiers.TierWrite, "update_booking", "d1", true)
	if d.Kind != DecisionSoftConfirm {
		t.Fatalf("stale digest confirmation must not execute, got %v", d.Kind)
	}
}

func TestEvaluate_WriteConfirmWithoutPending(t *testing.T) {
	r := NewRegister(0)

	// Confirmed flag with nothing pending: no silent execution.
	d := r.Evaluate(tiers.TierWrite, "create_booking", "d1", true)
	if d.Kind != DecisionSoftConfirm {
		t.Fatalf("confirmation without a matching pending must re-prompt, got %v", d.Kind)
	}
}

func TestEvaluate_DestructiveRequiresExplicitConfirm(t *testing.T) {
	r := NewRegister(0)

	d := r.Evaluate(tiers.TierDestructive, "create_refund", "d1", false)
	if d.Kind != DecisionHardConfirm {
		t.Fatalf("expected hard confirm, got %v", d.Kind)
	}
	if d.TokenPhrase != "CONFIRM CREATE REFUND" {
		t.Fatalf("unexpected token phrase %q", d.TokenPhrase)
	}

	// A soft confirmation of a different tool never releases a destructive one.
	r.Evaluate(tiers.TierWrite, "create_booking", "dX", false)
	r.Evaluate(tiers.TierWrite, "create_booking", "dX", true)
	d = r.Evaluate(tiers.TierDestructive, "create_refund", "d1", false)
	if d.Kind != DecisionHardConfirm {
		t.Fatalf("destructive tool must not escalate from soft confirm, got %v", d.Kind)
	}

	d = r.Evaluate(tiers.TierDestructive, "create_refund", "d1", true)
	if d.Kind != DecisionExecute {
		t.Fatalf("expected execute with verified confirmation, got %v", d.Kind)
	}
}

func TestEvaluate_UnspecifiedTierBlocked(t *testing.T) {
	r := NewRegister(0)

	d := r.Evaluate(tiers.TierUnspecified, "mystery", "d1", false)
	if d.Kind != DecisionBlocked {
		t.Fatalf("expected blocked, got %v", d.Kind)
	}
	if d.Reason == "" {
		t.Fatal("blocked decision must carry a reason")
	}
}

func TestRegister_TickExpiresPending(t *testing.T) {
	r := NewRegister(2)

	r.Evaluate(tiers.TierWrite, "create_booking", "d1", false)

	r.Tick()
	if r.Get("create_booking") == nil {
		t.Fatal("pending should survive the first turn boundary")
	}

	r.Tick()
	if r.Get("create_booking") != nil {
		t.Fatal("pending should expire after its turn budget")
	}

	// Confirming after expiry re-prompts instead of executing.
	d := r.Evaluate(tiers.TierWrite, "create_booking", "d1", true)
	if d.Kind != DecisionSoftConfirm {
		t.Fatalf("expired pending must not be confirmable, got %v", d.Kind)
	}
}

func TestRegister_ZeroTTLKeepsPendingForSession(t *testing.T) {
	r := NewRegister(0)

	r.Evaluate(tiers.TierWrite, "create_booking", "d1", false)
	for i := 0; i < 10; i++ {
		r.Tick()
	}
	if r.Get("create_booking") == nil {
		t.Fatal("turnTTL=0 should keep pendings for the whole session")
	}
}

func TestBlocked(t *testing.T) {
	d := Blocked("concierge", "create_refund")
	if d.Kind != DecisionBlocked {
		t.Fatalf("expected blocked, got %v", d.Kind)
	}
	if d.Reason == "" {
		t.Fatal("expected a reason naming the misconfiguration")
	}
}
