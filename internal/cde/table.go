// Package cde implements the Chord DHT Engine: ring membership, the finger
// table, and the join/notify/stabilize/fix-finger/leave/lookup protocol.
package cde

import (
	"fmt"

	"overlaysearch/internal/domain"
	"overlaysearch/internal/logger"
)

// Status is the CDE membership state.
type Status int

const (
	Detached Status = iota
	InRing
)

func (s Status) String() string {
	if s == InRing {
		return "InRing"
	}
	return "Detached"
}

// finger is one slot of the finger table: the target ID it was computed
// for, and the node currently believed to own it.
type finger struct {
	target domain.ID
	node   *domain.Node // nil until resolved
}

// Table holds a single node's Chord state. The whole-system scheduling
// model is single-threaded cooperative per node (one goroutine drains a
// fan-in channel of timers and inbound frames), so unlike the finger/
// successor-list structures it was generalized from, Table carries no
// internal locking: only the engine goroutine ever touches it.
type Table struct {
	lgr logger.Logger

	space domain.Space
	self  *domain.Node

	status      Status
	successor   *domain.Node
	predecessor *domain.Node

	fingers []finger // index 0 == spec's fingers[1], length == space.Bits
}

// New builds a Table for self, with all fingers unresolved and status
// Detached. Call InitSingleNode to become the ring's first member.
func New(self *domain.Node, space domain.Space, opts ...Option) *Table {
	t := &Table{
		self:    self,
		space:   space,
		status:  Detached,
		fingers: make([]finger, space.Bits),
		lgr:     &logger.NopLogger{},
	}
	for i := range t.fingers {
		target, err := space.AddMod(self.ID, space.PowerOfTwoMod(i))
		if err != nil {
			panic(err) // unreachable: self.ID and PowerOfTwoMod(i) are always valid in this space
		}
		t.fingers[i] = finger{target: target}
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lgr.Debug("chord table initialized", logger.FNode("self", self))
	return t
}

// InitSingleNode makes self the landmark of a brand-new ring: successor and
// fingers all point to self, predecessor is null.
func (t *Table) InitSingleNode() {
	t.status = InRing
	t.successor = t.self
	t.predecessor = nil
	for i := range t.fingers {
		t.fingers[i].node = t.self
	}
	t.lgr.Debug("chord table set to single-node ring")
}

// Reset returns the table to Detached, clearing all pointers.
func (t *Table) Reset() {
	t.status = Detached
	t.successor = nil
	t.predecessor = nil
	for i := range t.fingers {
		t.fingers[i].node = nil
	}
	t.lgr.Debug("chord table reset to detached")
}

func (t *Table) Self() *domain.Node    { return t.self }
func (t *Table) Status() Status        { return t.status }
func (t *Table) Space() domain.Space   { return t.space }
func (t *Table) Successor() *domain.Node   { return t.successor }
func (t *Table) Predecessor() *domain.Node { return t.predecessor }

func (t *Table) SetStatus(s Status) { t.status = s }

func (t *Table) SetSuccessor(n *domain.Node) {
	t.successor = n
	t.fingers[0].node = n
	t.lgr.Debug("successor updated", logger.FNode("successor", n))
}

func (t *Table) SetPredecessor(n *domain.Node) {
	t.predecessor = n
	t.lgr.Debug("predecessor updated", logger.FNode("predecessor", n))
}

// FingerCount returns the configured finger table width (space.Bits, 160 by default).
func (t *Table) FingerCount() int { return len(t.fingers) }

// FingerTarget returns the ID slot i (0-based, spec's fingers[i+1]) targets.
func (t *Table) FingerTarget(i int) domain.ID {
	return t.fingers[i].target
}

// Finger returns the node currently occupying slot i, or nil if unresolved.
func (t *Table) Finger(i int) *domain.Node {
	if i < 0 || i >= len(t.fingers) {
		return nil
	}
	return t.fingers[i].node
}

// SetFinger resolves slot i to node.
func (t *Table) SetFinger(i int, node *domain.Node) {
	if i < 0 || i >= len(t.fingers) {
		t.lgr.Warn("SetFinger: index out of range", logger.F("index", i))
		return
	}
	t.fingers[i].node = node
	t.lgr.Debug("finger updated", logger.F("index", i+1), logger.FNode("node", node))
}

// Fingers returns a snapshot of all currently resolved fingers, in slot order.
func (t *Table) Fingers() []*domain.Node {
	out := make([]*domain.Node, len(t.fingers))
	for i, f := range t.fingers {
		out[i] = f.node
	}
	return out
}

// FixableRange returns true if the interval (target(i-1), target(i)] lies
// entirely within (selfId, fingers[i-1].id], meaning slot i can reuse slot
// i-1's node without a network round trip. i is 0-based (i>=1). Because
// targets are strictly increasing (each is self + a larger power of two),
// it suffices to check that target(i) alone is still covered by slot i-1's
// half-open interval.
func (t *Table) FixableRange(i int) bool {
	if i <= 0 || i >= len(t.fingers) {
		return false
	}
	prevNode := t.fingers[i-1].node
	if prevNode == nil {
		return false
	}
	return t.fingers[i].target.Between(t.self.ID, prevNode.ID)
}

// ClosestPrecedingFinger scans fingers from the highest slot down, skipping
// entries equal to self, returning the first one whose ID lies strictly
// between self and target. Falls back to successor if none qualify.
func (t *Table) ClosestPrecedingFinger(target domain.ID) *domain.Node {
	for i := len(t.fingers) - 1; i >= 0; i-- {
		n := t.fingers[i].node
		if n == nil || n.ID.Equal(t.self.ID) {
			continue
		}
		if n.ID.BetweenOpen(t.self.ID, target) {
			return n
		}
	}
	return t.successor
}

// ResponsibleForLocally reports whether id falls in (selfId, successorId],
// meaning this node can answer FindSuccessor/lookup(id) without forwarding.
func (t *Table) ResponsibleForLocally(id domain.ID) bool {
	if t.successor == nil {
		return false
	}
	return id.Between(t.self.ID, t.successor.ID)
}

// DebugLog emits a single structured snapshot of the table.
func (t *Table) DebugLog() {
	fingers := make([]map[string]any, 0, len(t.fingers))
	for i, f := range t.fingers {
		entry := map[string]any{"slot": i + 1, "target": f.target.String()}
		if f.node != nil {
			entry["node"] = fmt.Sprintf("%s@%s", f.node.ID.String(), f.node.Addr)
		}
		fingers = append(fingers, entry)
	}
	t.lgr.Debug("chord table snapshot",
		logger.FNode("self", t.self),
		logger.F("status", t.status.String()),
		logger.FNode("successor", t.successor),
		logger.FNode("predecessor", t.predecessor),
		logger.F("fingers", fingers),
	)
}
