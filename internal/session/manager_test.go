package session

import (
	"testing"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/ratelimit"
	"go.uber.org/zap"
)

func testManager(idle time.Duration) *Manager {
	return NewManager(Config{
		Limits: ratelimit.Table{
			Default: ratelimit.Spec{MaxPerTurn: 3, MaxPerSession: 30},
		},
		SoftConfirmTurnTTL: 3,
		IdleTimeout:        idle,
	}, zap.NewNop())
}

func TestGetOrCreate_ReturnsSameSession(t *testing.T) {
	m := testManager(0)

	s1 := m.GetOrCreate("conv-1", "t1", "booking")
	s1.Limiter.RecordCall("get_services")

	s2 := m.GetOrCreate("conv-1", "t1", "booking")
	if s2 != s1 {
		t.Fatal("expected the same session instance")
	}
	if got := s2.Limiter.Stats().Session["get_services"]; got != 1 {
		t.Fatalf("session state should persist across lookups, got %d", got)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
}

func TestEnd_DiscardsState(t *testing.T) {
	m := testManager(0)

	s := m.GetOrCreate("conv-1", "t1", "booking")
	for i := 0; i < 30; i++ {
		s.Limiter.RecordCall("get_services")
	}
	if d := s.Limiter.CanCall("get_services"); d.Allowed {
		t.Fatal("expected session ceiling hit")
	}

	if !m.End("conv-1") {
		t.Fatal("End should report the session existed")
	}
	if m.End("conv-1") {
		t.Fatal("End of a missing session should report false")
	}

	// Recreation starts every ceiling at zero.
	s = m.GetOrCreate("conv-1", "t1", "booking")
	if d := s.Limiter.CanCall("get_services"); !d.Allowed {
		t.Fatalf("fresh session should have full budget, got %s", d.Reason)
	}
}

func TestBeginTurn_ResetsTurnState(t *testing.T) {
	m := testManager(0)
	s := m.GetOrCreate("conv-1", "t1", "booking")

	for i := 0; i < 3; i++ {
		s.Limiter.RecordCall("get_services")
	}
	if d := s.Limiter.CanCall("get_services"); d.Allowed {
		t.Fatal("expected turn ceiling hit")
	}

	s.BeginTurn()

	if d := s.Limiter.CanCall("get_services"); !d.Allowed {
		t.Fatalf("turn budget should reset at the boundary, got %s", d.Reason)
	}
	if got := s.Limiter.Stats().Session["get_services"]; got != 3 {
		t.Fatalf("session counts must survive the turn boundary, got %d", got)
	}
}

func TestSweep_DropsIdleSessions(t *testing.T) {
	m := testManager(10 * time.Minute)
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.GetOrCreate("conv-1", "t1", "booking")
	m.GetOrCreate("conv-2", "t1", "booking")

	base = base.Add(5 * time.Minute)
	m.Get("conv-2") // keeps conv-2 fresh

	base = base.Add(6 * time.Minute)
	if swept := m.Sweep(); swept != 1 {
		t.Fatalf("expected 1 swept session, got %d", swept)
	}
	if m.Get("conv-1") != nil {
		t.Fatal("conv-1 should have been swept")
	}
	if m.Get("conv-2") == nil {
		t.Fatal("conv-2 should have survived")
	}
}

func TestSweep_DisabledWithoutTimeout(t *testing.T) {
	m := testManager(0)
	m.GetOrCreate("conv-1", "t1", "booking")

	if swept := m.Sweep(); swept != 0 {
		t.Fatalf("sweep should be a no-op without an idle timeout, got %d", swept)
	}
}
