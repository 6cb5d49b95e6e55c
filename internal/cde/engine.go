package cde

import (
	"context"
	"fmt"
	"net"
	"time"

	"overlaysearch/internal/config"
	"overlaysearch/internal/directory"
	"overlaysearch/internal/domain"
	"overlaysearch/internal/errs"
	"overlaysearch/internal/logger"
	"overlaysearch/internal/metrics"
	"overlaysearch/internal/pendingping"
	"overlaysearch/internal/telemetry/lookuptrace"
	"overlaysearch/internal/wire"
)

type pendingLookup struct {
	flag wire.LookupFlag
	key  string
}

type pendingFinger struct {
	index  int // 0-based table slot awaiting resolution
	txnSeq uint32
}

// eventKind discriminates the fan-in channel the engine's single goroutine
// drains: inbound datagrams and periodic timers share one queue so no
// protocol state ever needs a lock.
type eventKind int

const (
	evFrame eventKind = iota
	evStabilizeTick
	evFixFingerTick
	evPingAuditTick
	evCommand
)

type event struct {
	kind eventKind
	from *net.UDPAddr
	frame wire.ChordFrame
	cmd   func(*Engine)
	done  chan struct{}
}

// Engine runs the Chord DHT protocol state machine for one node: join,
// notify, stabilize, fix-finger, leave, ping, and publish/search lookup.
// It owns the application-port socket exclusively; SL talks to it only
// through the SL upcall interface.
type Engine struct {
	lgr logger.Logger

	table *Table
	sock  *socket
	port  int
	dir   *directory.Directory
	sl    SL
	met   *metrics.Registry

	pingTimeout     time.Duration
	stabilizePeriod time.Duration
	fixFingerPeriod time.Duration

	nextTxn        uint32
	pings          *pendingping.Tracker
	pendingLookups map[uint32]pendingLookup
	pendingFinger  *pendingFinger

	events chan event
}

// NewEngine builds an Engine bound to cfg.AppPort on bindHost.
func NewEngine(cfg config.ChordConfig, bindHost string, self *domain.Node, dir *directory.Directory, sl SL, met *metrics.Registry, lgr logger.Logger) (*Engine, error) {
	space, err := domain.NewSpace(cfg.IDBits)
	if err != nil {
		return nil, fmt.Errorf("chord id space: %w", err)
	}
	sock, err := newSocket(bindHost, cfg.AppPort)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		lgr:             lgr,
		table:           New(self, space, WithLogger(lgr)),
		sock:            sock,
		port:            cfg.AppPort,
		dir:             dir,
		sl:              sl,
		met:             met,
		pingTimeout:     cfg.PingTimeout,
		stabilizePeriod: cfg.StabilizePeriod,
		fixFingerPeriod: cfg.FixFingerPeriod,
		pings:           pendingping.New(),
		pendingLookups:  make(map[uint32]pendingLookup),
		events:          make(chan event, 64),
	}
	return e, nil
}

func (e *Engine) nextTxnSeq() uint32 {
	e.nextTxn++
	return e.nextTxn
}

func (e *Engine) hostIP() string {
	host, _, _ := net.SplitHostPort(e.table.Self().Addr)
	return host
}

func nodeFromIP(space domain.Space, ip string, port int) *domain.Node {
	return &domain.Node{
		ID:   space.NewIdFromString(ip),
		Addr: net.JoinHostPort(ip, fmt.Sprintf("%d", port)),
	}
}

// Run starts the read loop and timer tickers, and processes events serially
// until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	go e.readLoop()

	stabilizeT := time.NewTicker(e.stabilizePeriod)
	fixFingerT := time.NewTicker(e.fixFingerPeriod)
	pingAuditT := time.NewTicker(e.pingTimeout)
	defer stabilizeT.Stop()
	defer fixFingerT.Stop()
	defer pingAuditT.Stop()

	for {
		select {
		case <-ctx.Done():
			e.sock.close()
			return nil
		case <-stabilizeT.C:
			e.events <- event{kind: evStabilizeTick}
		case <-fixFingerT.C:
			e.events <- event{kind: evFixFingerTick}
		case <-pingAuditT.C:
			e.events <- event{kind: evPingAuditTick}
		case ev := <-e.events:
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Engine) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := e.sock.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		frame, err := wire.DecodeChordFrame(buf[:n])
		if err != nil {
			e.lgr.Debug("dropping malformed chord frame", logger.F("err", err.Error()), logger.F("from", addr.String()))
			continue
		}
		e.events <- event{kind: evFrame, from: addr, frame: frame}
	}
}

// submit enqueues an operator command and blocks until it has been applied
// by the engine goroutine, preserving the single-threaded mutation model.
func (e *Engine) submit(cmd func(*Engine)) {
	done := make(chan struct{})
	e.events <- event{kind: evCommand, cmd: cmd, done: done}
	<-done
}

func (e *Engine) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case evFrame:
		e.handleFrame(ev.from, ev.frame)
	case evStabilizeTick:
		e.stabilize()
	case evFixFingerTick:
		e.fixFinger()
	case evPingAuditTick:
		e.pingAudit()
	case evCommand:
		ev.cmd(e)
		close(ev.done)
	}
}

func (e *Engine) handleFrame(from *net.UDPAddr, f wire.ChordFrame) {
	senderIP := from.IP.String()
	switch f.Tag {
	case wire.ChordPingReq:
		e.send(senderIP, wire.ChordFrame{Tag: wire.ChordPingRsp, TxnSeq: f.TxnSeq})
	case wire.ChordPingRsp:
		e.pings.Resolve(f.TxnSeq)
	case wire.JoinChord:
		e.handleJoinChord(senderIP, f.TxnSeq)
	case wire.JoinChordFail:
		e.lgr.Warn("join refused: contact node is not in the ring")
	case wire.FindSuccessor:
		e.handleFindSuccessor(f)
	case wire.JoinChordSuccess:
		e.handleJoinChordSuccess(f)
	case wire.Notify:
		e.handleNotify(senderIP)
	case wire.StabilizeReq:
		e.handleStabilizeReq(senderIP, f.TxnSeq)
	case wire.StabilizeResp:
		e.handleStabilizeResp(f)
	case wire.RingState:
		e.handleRingState(f)
	case wire.LeaveSuccessor:
		e.handleLeaveSuccessor(f)
	case wire.LeavePredecessor:
		e.handleLeavePredecessor(f)
	case wire.FindFinger:
		e.handleFindFinger(f)
	case wire.FindFingerSuccess:
		e.handleFindFingerSuccess(f)
	case wire.LookupPublish:
		e.handleLookupPublish(f)
	case wire.LookupPublishSuccess:
		e.handleLookupPublishSuccess(f)
	}
}

func (e *Engine) send(ip string, frame wire.ChordFrame) {
	if err := e.sock.send(ip, frame); err != nil {
		e.lgr.Debug("chord send failed", logger.F("to", ip), logger.F("err", err.Error()))
	}
}

// --- Join ---

// Join implements the JOIN operator command. targetNumber == self's own
// node number makes this node the ring's landmark. Runs inside the event
// loop via submit since it is called from outside it (REPL/harness).
func (e *Engine) Join(targetNumber int, selfNumber int) error {
	var retErr error
	e.submit(func(e *Engine) {
		if targetNumber == selfNumber {
			e.table.InitSingleNode()
			return
		}
		targetIP, ok := e.dir.IPFor(targetNumber)
		if !ok {
			retErr = errs.ErrDirectoryMiss
			return
		}
		e.send(targetIP, wire.ChordFrame{Tag: wire.JoinChord, TxnSeq: e.nextTxnSeq()})
	})
	return retErr
}

func (e *Engine) handleJoinChord(joinerIP string, txn uint32) {
	if e.table.Status() != InRing {
		e.send(joinerIP, wire.ChordFrame{Tag: wire.JoinChordFail, TxnSeq: txn})
		return
	}
	space := e.table.Space()
	joinerID := space.NewIdFromString(joinerIP)
	port := e.appPort()

	if e.table.Successor().ID.Equal(e.table.Self().ID) {
		// one-node ring: short-circuit.
		e.send(joinerIP, wire.ChordFrame{Tag: wire.JoinChordSuccess, TxnSeq: txn,
			JoinChordSuccess: &wire.AddrPayload{IP: e.hostIP()}})
		e.table.SetSuccessor(nodeFromIP(space, joinerIP, port))
		e.send(joinerIP, wire.ChordFrame{Tag: wire.Notify, TxnSeq: e.nextTxnSeq()})
		return
	}

	if e.table.ResponsibleForLocally(joinerID) {
		e.send(joinerIP, wire.ChordFrame{Tag: wire.JoinChordSuccess, TxnSeq: txn,
			JoinChordSuccess: &wire.AddrPayload{IP: e.addrHost(e.table.Successor())}})
		return
	}

	next := e.table.ClosestPrecedingFinger(joinerID)
	e.send(e.addrHost(next), wire.ChordFrame{Tag: wire.FindSuccessor, TxnSeq: txn,
		FindSuccessor: &wire.FindSuccessorPayload{ReplyTo: joinerIP, Target: joinerID}})
}

func (e *Engine) handleFindSuccessor(f wire.ChordFrame) {
	p := f.FindSuccessor
	target := domain.ID(p.Target)
	if e.table.ResponsibleForLocally(target) {
		e.send(p.ReplyTo, wire.ChordFrame{Tag: wire.JoinChordSuccess, TxnSeq: f.TxnSeq,
			JoinChordSuccess: &wire.AddrPayload{IP: e.addrHost(e.table.Successor())}})
		return
	}
	next := e.table.ClosestPrecedingFinger(target)
	e.send(e.addrHost(next), wire.ChordFrame{Tag: wire.FindSuccessor, TxnSeq: f.TxnSeq,
		FindSuccessor: &wire.FindSuccessorPayload{ReplyTo: p.ReplyTo, Target: target}})
}

func (e *Engine) handleJoinChordSuccess(f wire.ChordFrame) {
	space := e.table.Space()
	port := e.appPort()
	succ := nodeFromIP(space, f.JoinChordSuccess.IP, port)
	e.table.SetStatus(InRing)
	e.table.SetSuccessor(succ)
	e.table.SetPredecessor(nil)
	e.send(f.JoinChordSuccess.IP, wire.ChordFrame{Tag: wire.Notify, TxnSeq: e.nextTxnSeq()})
}

func (e *Engine) handleNotify(senderIP string) {
	space := e.table.Space()
	sNode := nodeFromIP(space, senderIP, e.appPort())
	pred := e.table.Predecessor()
	if pred == nil || sNode.ID.BetweenOpen(pred.ID, e.table.Self().ID) {
		e.table.SetPredecessor(sNode)
		e.sl.OnNewPredecessor(sNode)
	}
}

// --- Stabilize ---

func (e *Engine) stabilize() {
	if e.table.Status() != InRing {
		return
	}
	succ := e.table.Successor()
	if succ == nil || succ.ID.Equal(e.table.Self().ID) {
		return
	}
	e.send(e.addrHost(succ), wire.ChordFrame{Tag: wire.StabilizeReq, TxnSeq: e.nextTxnSeq()})
}

func (e *Engine) handleStabilizeReq(senderIP string, txn uint32) {
	predIP := ""
	if pred := e.table.Predecessor(); pred != nil {
		predIP = e.addrHost(pred)
	}
	e.send(senderIP, wire.ChordFrame{Tag: wire.StabilizeResp, TxnSeq: txn,
		StabilizeResp: &wire.AddrPayload{IP: predIP}})
}

func (e *Engine) handleStabilizeResp(f wire.ChordFrame) {
	candidateIP := f.StabilizeResp.IP
	if candidateIP != "" {
		space := e.table.Space()
		candidate := nodeFromIP(space, candidateIP, e.appPort())
		succ := e.table.Successor()
		if !candidate.ID.Equal(e.table.Self().ID) && candidate.ID.BetweenOpen(e.table.Self().ID, succ.ID) {
			e.table.SetSuccessor(candidate)
		}
	}
	succ := e.table.Successor()
	if succ != nil {
		e.send(e.addrHost(succ), wire.ChordFrame{Tag: wire.Notify, TxnSeq: e.nextTxnSeq()})
	}
}

// --- Fix finger ---

func (e *Engine) fixFinger() {
	if e.table.Status() != InRing || e.pendingFinger != nil {
		return
	}
	e.table.SetFinger(0, e.table.Successor())
	e.continueFixFinger(1)
}

// continueFixFinger resumes fixing from 0-based slot i, reusing slots that
// need no network traffic and stopping at the first that does.
func (e *Engine) continueFixFinger(i int) {
	for i < e.table.FingerCount() {
		if e.table.FixableRange(i) {
			e.table.SetFinger(i, e.table.Finger(i-1))
			i++
			continue
		}
		txn := e.nextTxnSeq()
		e.pendingFinger = &pendingFinger{index: i, txnSeq: txn}
		target := e.table.FingerTarget(i)
		prev := e.table.Finger(i - 1)
		if prev == nil {
			return
		}
		e.send(e.addrHost(prev), wire.ChordFrame{Tag: wire.FindFinger, TxnSeq: txn,
			FindFinger: &wire.FindFingerPayload{ReplyTo: e.hostIP(), Target: target, Index: uint16(i + 1)}})
		return
	}
}

func (e *Engine) handleFindFinger(f wire.ChordFrame) {
	p := f.FindFinger
	target := domain.ID(p.Target)
	if e.table.ResponsibleForLocally(target) {
		e.send(p.ReplyTo, wire.ChordFrame{Tag: wire.FindFingerSuccess, TxnSeq: f.TxnSeq,
			FindFingerSuccess: &wire.FindFingerSuccessPayload{FingerIP: e.addrHost(e.table.Successor()), Index: p.Index}})
		return
	}
	next := e.table.ClosestPrecedingFinger(target)
	e.send(e.addrHost(next), wire.ChordFrame{Tag: wire.FindFinger, TxnSeq: f.TxnSeq,
		FindFinger: &wire.FindFingerPayload{ReplyTo: p.ReplyTo, Target: target, Index: p.Index}})
}

func (e *Engine) handleFindFingerSuccess(f wire.ChordFrame) {
	p := f.FindFingerSuccess
	if e.pendingFinger == nil || uint16(e.pendingFinger.index+1) != p.Index {
		return
	}
	idx := e.pendingFinger.index
	e.pendingFinger = nil
	node := nodeFromIP(e.table.Space(), p.FingerIP, e.appPort())
	e.table.SetFinger(idx, node)
	e.continueFixFinger(idx + 1)
}

// --- Lookup / publish ---

// Lookup resolves key's responsible node and dispatches the result to SL
// via the callback selected by flag, either locally (short-circuit) or
// after forwarding around the ring. Called from outside the event loop
// (search ingestion, REPL), so it runs inside the loop via submit.
func (e *Engine) Lookup(ctx context.Context, key string, flag wire.LookupFlag) {
	e.submit(func(e *Engine) {
		space := e.table.Space()
		d := space.NewIdFromString(key)
		e.met.Lookups.Inc()
		if e.table.ResponsibleForLocally(d) {
			e.sl.OnLookupResult(flag, e.table.Successor(), key)
			return
		}
		txn := e.nextTxnSeq()
		e.pendingLookups[txn] = pendingLookup{flag: flag, key: key}
		next := e.table.ClosestPrecedingFinger(d)
		_, span := lookuptrace.StartHop(ctx, "cde.lookup.initiate", txn)
		defer span.End()
		e.send(e.addrHost(next), wire.ChordFrame{Tag: wire.LookupPublish, TxnSeq: txn,
			LookupPublish: &wire.LookupPublishPayload{Flag: flag, Initiator: e.hostIP(), Target: d, Key: key}})
	})
}

func (e *Engine) handleLookupPublish(f wire.ChordFrame) {
	_, span := lookuptrace.StartHop(lookuptrace.WithLookup(context.Background()), "cde.lookup.hop", f.TxnSeq)
	defer span.End()
	p := f.LookupPublish
	target := domain.ID(p.Target)
	if e.table.ResponsibleForLocally(target) {
		e.send(p.Initiator, wire.ChordFrame{Tag: wire.LookupPublishSuccess, TxnSeq: f.TxnSeq,
			LookupPublishSuccess: &wire.LookupPublishSuccessPayload{Flag: p.Flag, Responsible: e.addrHost(e.table.Successor()), Key: p.Key}})
		return
	}
	e.met.LookupHops.Inc()
	next := e.table.ClosestPrecedingFinger(target)
	e.send(e.addrHost(next), wire.ChordFrame{Tag: wire.LookupPublish, TxnSeq: f.TxnSeq, LookupPublish: p})
}

func (e *Engine) handleLookupPublishSuccess(f wire.ChordFrame) {
	pending, ok := e.pendingLookups[f.TxnSeq]
	if !ok {
		return
	}
	delete(e.pendingLookups, f.TxnSeq)
	p := f.LookupPublishSuccess
	node := nodeFromIP(e.table.Space(), p.Responsible, e.appPort())
	e.sl.OnLookupResult(pending.flag, node, p.Key)
}

// --- Leave ---

// Leave implements the LEAVE operator command. Runs inside the event loop
// via submit since it is called from outside it (REPL).
func (e *Engine) Leave() error {
	var retErr error
	e.submit(func(e *Engine) {
		if e.table.Status() != InRing {
			retErr = errs.ErrNotInRing
			return
		}
		succ := e.table.Successor()
		if succ.ID.Equal(e.table.Self().ID) {
			e.table.Reset()
			return
		}
		pred := e.table.Predecessor()
		predIP := ""
		if pred != nil && !pred.ID.Equal(succ.ID) {
			predIP = e.addrHost(pred)
		}
		e.send(e.addrHost(succ), wire.ChordFrame{Tag: wire.LeaveSuccessor, TxnSeq: e.nextTxnSeq(),
			LeaveSuccessor: &wire.AddrPayload{IP: predIP}})
		if pred != nil {
			e.send(e.addrHost(pred), wire.ChordFrame{Tag: wire.LeavePredecessor, TxnSeq: e.nextTxnSeq(),
				LeavePredecessor: &wire.AddrPayload{IP: e.addrHost(succ)}})
		}
		e.sl.OnLeaveHandoff(succ)
		e.table.Reset()
	})
	return retErr
}

func (e *Engine) handleLeaveSuccessor(f wire.ChordFrame) {
	ip := f.LeaveSuccessor.IP
	if ip == "" {
		e.table.SetPredecessor(nil)
		return
	}
	e.table.SetPredecessor(nodeFromIP(e.table.Space(), ip, e.appPort()))
}

func (e *Engine) handleLeavePredecessor(f wire.ChordFrame) {
	e.table.SetSuccessor(nodeFromIP(e.table.Space(), f.LeavePredecessor.IP, e.appPort()))
}

// --- Ring state / ping / fingers ---

// RingState implements the RINGSTATE operator command: emits a ring-walk
// starting at successor that prints each node's {self, pred, succ} and
// terminates back at the initiator.
func (e *Engine) RingState() error {
	var retErr error
	e.submit(func(e *Engine) {
		if e.table.Status() != InRing {
			retErr = errs.ErrNotInRing
			return
		}
		e.printRingState()
		succ := e.table.Successor()
		if succ.ID.Equal(e.table.Self().ID) {
			return
		}
		e.send(e.addrHost(succ), wire.ChordFrame{Tag: wire.RingState, TxnSeq: e.nextTxnSeq(),
			RingState: &wire.AddrPayload{IP: e.hostIP()}})
	})
	return retErr
}

func (e *Engine) handleRingState(f wire.ChordFrame) {
	e.printRingState()
	if f.RingState.IP == e.hostIP() {
		return // walked all the way back to the initiator
	}
	succ := e.table.Successor()
	e.send(e.addrHost(succ), wire.ChordFrame{Tag: wire.RingState, TxnSeq: f.TxnSeq, RingState: f.RingState})
}

func (e *Engine) printRingState() {
	e.lgr.Info("ring state",
		logger.FNode("self", e.table.Self()),
		logger.FNode("predecessor", e.table.Predecessor()),
		logger.FNode("successor", e.table.Successor()),
	)
}

// Ping sends a unicast ping to the node at the given address and tracks it
// for the ping audit. Runs inside the event loop via submit since it is
// called from outside it (REPL).
func (e *Engine) Ping(destIP, message string) {
	e.submit(func(e *Engine) {
		txn := e.nextTxnSeq()
		e.pings.Start(txn, destIP, message)
		e.send(destIP, wire.ChordFrame{Tag: wire.ChordPingReq, TxnSeq: txn})
	})
}

func (e *Engine) pingAudit() {
	for _, p := range e.pings.ExpireOlderThan(e.pingTimeout) {
		e.met.PingTimeouts.Inc()
		e.lgr.Warn("chord ping timed out", logger.F("dest", p.DestIP), logger.F("message", p.Message))
	}
}

// DebugDump logs a structured snapshot of the finger table, successor and
// predecessor. Called from the operator console, so it runs through submit
// rather than reading e.table concurrently with the event loop's writes.
func (e *Engine) DebugDump() {
	e.submit(func(e *Engine) {
		e.table.DebugLog()
	})
}

// FingerSnapshot is a REPL-friendly view of one finger table slot.
type FingerSnapshot struct {
	Slot   int
	Target string
	Node   *domain.Node
}

// Fingers returns a point-in-time snapshot of every finger table slot.
func (e *Engine) Fingers() []FingerSnapshot {
	var out []FingerSnapshot
	e.submit(func(e *Engine) {
		n := e.table.FingerCount()
		out = make([]FingerSnapshot, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, FingerSnapshot{Slot: i + 1, Target: e.table.FingerTarget(i).String(), Node: e.table.Finger(i)})
		}
	})
	return out
}

func (e *Engine) appPort() int { return e.port }

func (e *Engine) addrHost(n *domain.Node) string {
	host, _, _ := net.SplitHostPort(n.Addr)
	return host
}
