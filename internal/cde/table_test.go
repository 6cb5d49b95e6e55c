package cde

import (
	"testing"

	"overlaysearch/internal/domain"
)

func nodeAt(t *testing.T, sp domain.Space, hex, addr string) *domain.Node {
	t.Helper()
	id, err := sp.FromHexString(hex)
	if err != nil {
		t.Fatalf("FromHexString(%q): %v", hex, err)
	}
	return &domain.Node{ID: id, Addr: addr}
}

func TestNewTableInitializesAllFingersUnresolved(t *testing.T) {
	sp, err := domain.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := nodeAt(t, sp, "10", "10.0.0.1:7000")
	tbl := New(self, sp)

	if tbl.FingerCount() != 8 {
		t.Fatalf("FingerCount() = %d, want 8", tbl.FingerCount())
	}
	if tbl.Status() != Detached {
		t.Fatalf("Status() = %v, want Detached", tbl.Status())
	}
	for i := 0; i < tbl.FingerCount(); i++ {
		if tbl.Finger(i) != nil {
			t.Fatalf("Finger(%d) should start unresolved", i)
		}
	}
}

func TestInitSingleNodeAndReset(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	self := nodeAt(t, sp, "10", "10.0.0.1:7000")
	tbl := New(self, sp)

	tbl.InitSingleNode()
	if tbl.Status() != InRing {
		t.Fatalf("Status() after InitSingleNode = %v, want InRing", tbl.Status())
	}
	if tbl.Successor() != self || tbl.Predecessor() != nil {
		t.Fatalf("single-node ring should have successor=self, predecessor=nil")
	}
	for i := 0; i < tbl.FingerCount(); i++ {
		if tbl.Finger(i) != self {
			t.Fatalf("Finger(%d) should point to self in a single-node ring", i)
		}
	}

	tbl.Reset()
	if tbl.Status() != Detached || tbl.Successor() != nil || tbl.Predecessor() != nil {
		t.Fatalf("Reset() should clear status, successor, predecessor")
	}
	for i := 0; i < tbl.FingerCount(); i++ {
		if tbl.Finger(i) != nil {
			t.Fatalf("Reset() should clear Finger(%d)", i)
		}
	}
}

func TestSetSuccessorUpdatesFingerZero(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	self := nodeAt(t, sp, "10", "10.0.0.1:7000")
	other := nodeAt(t, sp, "20", "10.0.0.2:7000")
	tbl := New(self, sp)

	tbl.SetSuccessor(other)
	if tbl.Successor() != other {
		t.Fatalf("Successor() = %v, want %v", tbl.Successor(), other)
	}
	if tbl.Finger(0) != other {
		t.Fatalf("Finger(0) should mirror SetSuccessor")
	}
}

func TestResponsibleForLocally(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	self := nodeAt(t, sp, "10", "10.0.0.1:7000")
	succ := nodeAt(t, sp, "20", "10.0.0.2:7000")
	tbl := New(self, sp)

	if tbl.ResponsibleForLocally(mustID(t, sp, "15")) {
		t.Fatalf("ResponsibleForLocally should be false before a successor is set")
	}

	tbl.SetSuccessor(succ)
	if !tbl.ResponsibleForLocally(mustID(t, sp, "15")) {
		t.Fatalf("0x15 should be responsible-locally in (0x10, 0x20]")
	}
	if tbl.ResponsibleForLocally(mustID(t, sp, "25")) {
		t.Fatalf("0x25 should not be responsible-locally in (0x10, 0x20]")
	}
}

func TestClosestPrecedingFingerFallsBackToSuccessor(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	self := nodeAt(t, sp, "10", "10.0.0.1:7000")
	succ := nodeAt(t, sp, "20", "10.0.0.2:7000")
	tbl := New(self, sp)
	tbl.SetSuccessor(succ)

	got := tbl.ClosestPrecedingFinger(mustID(t, sp, "30"))
	if got != succ {
		t.Fatalf("ClosestPrecedingFinger with no other fingers resolved should fall back to successor, got %v", got)
	}
}

func TestClosestPrecedingFingerSkipsSelf(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	self := nodeAt(t, sp, "10", "10.0.0.1:7000")
	succ := nodeAt(t, sp, "20", "10.0.0.2:7000")
	far := nodeAt(t, sp, "80", "10.0.0.3:7000")
	tbl := New(self, sp)
	tbl.SetSuccessor(succ)

	for i := 0; i < tbl.FingerCount(); i++ {
		tbl.SetFinger(i, self)
	}
	lastSlot := tbl.FingerCount() - 1
	tbl.SetFinger(lastSlot, far)

	got := tbl.ClosestPrecedingFinger(mustID(t, sp, "ff"))
	if got != far {
		t.Fatalf("ClosestPrecedingFinger should skip self-owned slots and return %v, got %v", far, got)
	}
}

func mustID(t *testing.T, sp domain.Space, hex string) domain.ID {
	t.Helper()
	id, err := sp.FromHexString(hex)
	if err != nil {
		t.Fatalf("FromHexString(%q): %v", hex, err)
	}
	return id
}
