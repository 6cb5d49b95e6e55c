package lse

import (
	"context"
	"net"
	"net/netip"
	"time"

	"overlaysearch/internal/config"
	"overlaysearch/internal/directory"
	"overlaysearch/internal/errs"
	"overlaysearch/internal/logger"
	"overlaysearch/internal/metrics"
	"overlaysearch/internal/pendingping"
	"overlaysearch/internal/wire"
)

// RouteAction tells a caller of RouteInput what to do with the packet.
type RouteAction int

const (
	RouteDrop RouteAction = iota
	RouteLocalDeliver
	RouteForward
)

type eventKind int

const (
	evFrame eventKind = iota
	evNDTick
	evPingAuditTick
	evCommand
)

type event struct {
	kind    eventKind
	from    *net.UDPAddr
	arrival *socket
	frame   wire.LSRFrame
	cmd     func(*Engine)
	done    chan struct{}
}

// Engine is the Link-State Engine: one event loop draining every socket's
// read loop plus its own tickers, mirroring cde.Engine's single-threaded
// per-node scheduling model so protocol state never needs locking.
type Engine struct {
	lgr logger.Logger

	state   *State
	sockets []*socket
	selfIP  string
	port    int
	maxTTL  uint8

	dir    *directory.Directory
	static *StaticRouter
	met    *metrics.Registry

	ndTimeout   time.Duration
	pingTimeout time.Duration

	nextTxn uint32
	pings   *pendingping.Tracker

	events chan event
}

// NewEngine builds the LSE. selfIP is this node's main address, the value
// every LSRFrame carries as Originator and the value peers key their
// neighbor/topology entries by.
func NewEngine(cfg config.RoutingConfig, selfIP string, dir *directory.Directory, met *metrics.Registry, lgr logger.Logger) (*Engine, error) {
	resolve := func(ip string) (int, bool) { return dir.NumberFor(ip) }

	var sockets []*socket
	ifaces := cfg.Interfaces
	if len(ifaces) == 0 {
		ifaces = []string{"0.0.0.0"}
	}
	for _, ifaceIP := range ifaces {
		sock, err := newSocket(ifaceIP, cfg.LSPort)
		if err != nil {
			for _, s := range sockets {
				s.close()
			}
			return nil, err
		}
		sockets = append(sockets, sock)
	}

	e := &Engine{
		lgr:         lgr,
		state:       NewState(selfIP, resolve),
		sockets:     sockets,
		selfIP:      selfIP,
		port:        cfg.LSPort,
		maxTTL:      uint8(cfg.MaxTTL),
		dir:         dir,
		static:      NewStaticRouter(),
		met:         met,
		ndTimeout:   cfg.NdTimeout,
		pingTimeout: 2 * cfg.NdTimeout,
		pings:       pendingping.New(),
		events:      make(chan event, 64),
	}
	return e, nil
}

// Static exposes the fallback static router. It starts empty; routes are
// installed on it with AddRoute.
func (e *Engine) Static() *StaticRouter { return e.static }

func (e *Engine) nextTxnSeq() uint32 { e.nextTxn++; return e.nextTxn }

// Run drives the event loop until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	for _, s := range e.sockets {
		go e.readLoop(s)
	}
	ndT := time.NewTicker(e.ndTimeout)
	pingAuditT := time.NewTicker(e.pingTimeout)
	defer ndT.Stop()
	defer pingAuditT.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, s := range e.sockets {
				s.close()
			}
			return nil
		case <-ndT.C:
			e.events <- event{kind: evNDTick}
		case <-pingAuditT.C:
			e.events <- event{kind: evPingAuditTick}
		case ev := <-e.events:
			e.dispatch(ev)
		}
	}
}

func (e *Engine) readLoop(s *socket) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame, err := wire.DecodeLSRFrame(buf[:n])
		if err != nil {
			e.lgr.Debug("dropping malformed lsr frame", logger.F("err", err.Error()), logger.F("from", addr.String()))
			continue
		}
		e.events <- event{kind: evFrame, from: addr, arrival: s, frame: frame}
	}
}

func (e *Engine) submit(cmd func(*Engine)) {
	done := make(chan struct{})
	e.events <- event{kind: evCommand, cmd: cmd, done: done}
	<-done
}

func (e *Engine) dispatch(ev event) {
	switch ev.kind {
	case evFrame:
		e.handleFrame(ev.arrival, ev.frame)
	case evNDTick:
		e.ndRound()
	case evPingAuditTick:
		e.pingAudit()
	case evCommand:
		ev.cmd(e)
		close(ev.done)
	}
}

func (e *Engine) handleFrame(arrival *socket, f wire.LSRFrame) {
	switch f.Tag {
	case wire.LSRPingReq:
		e.send(arrival, f.Originator, wire.LSRFrame{Tag: wire.LSRPingRsp, TxnSeq: f.TxnSeq, TTL: 1, Originator: e.selfIP, Ping: &wire.PingPayload{}})
	case wire.LSRPingRsp:
		e.pings.Resolve(f.TxnSeq)
	case wire.NDReq:
		e.send(arrival, f.Originator, wire.LSRFrame{Tag: wire.NDRsp, TxnSeq: f.TxnSeq, TTL: 1, Originator: e.selfIP, Ping: &wire.PingPayload{}})
	case wire.NDRsp:
		e.state.RecordNeighbor(f.Originator, arrival.ifaceIP)
	case wire.LSP:
		e.handleLSP(arrival, f)
	}
}

func (e *Engine) send(arrival *socket, destIP string, frame wire.LSRFrame) {
	if err := arrival.send(destIP, frame); err != nil {
		e.lgr.Debug("lsr send failed", logger.F("to", destIP), logger.F("err", err.Error()))
	}
}

// peerIPs lists every directory address other than our own, the stand-in
// for a real link-layer broadcast domain: the directory carries no
// per-interface reachability information, so every flood or probe goes to
// every known peer on every socket but the one it arrived on.
func (e *Engine) peerIPs() []string {
	var out []string
	for _, n := range e.dir.Numbers() {
		ip, ok := e.dir.IPFor(n)
		if ok && ip != e.selfIP {
			out = append(out, ip)
		}
	}
	return out
}

func (e *Engine) broadcast(except *socket, frame wire.LSRFrame) {
	peers := e.peerIPs()
	for _, s := range e.sockets {
		if s == except {
			continue
		}
		for _, ip := range peers {
			e.send(s, ip, frame)
		}
	}
}

// --- Neighbor discovery (§4.2) ---

func (e *Engine) ndRound() {
	changed := e.state.CommitRound()
	if changed {
		e.floodOwnLSP()
		e.state.RecomputeForwarding()
	}
	txn := e.nextTxnSeq()
	e.broadcast(nil, wire.LSRFrame{Tag: wire.NDReq, TxnSeq: txn, TTL: 1, Originator: e.selfIP, Ping: &wire.PingPayload{}})
}

func (e *Engine) floodOwnLSP() {
	seq := e.state.NextLSPSeq()
	neighbors := make([]string, 0, len(e.state.StableNeighbors()))
	for ip := range e.state.StableNeighbors() {
		neighbors = append(neighbors, ip)
	}
	e.met.LSPsSent.Inc()
	e.broadcast(nil, wire.LSRFrame{
		Tag:        wire.LSP,
		TxnSeq:     e.nextTxnSeq(),
		TTL:        e.maxTTL,
		Originator: e.selfIP,
		LSP:        &wire.LSPPayload{Seq: seq, Neighbors: neighbors},
	})
}

// --- LSP flooding (§4.3) ---

func (e *Engine) handleLSP(arrival *socket, f wire.LSRFrame) {
	if !e.state.ApplyLSP(f.Originator, f.LSP.Seq, f.LSP.Neighbors) {
		e.met.LSPsDropped.Inc()
		return
	}
	e.state.RecomputeForwarding()

	if f.TTL == 0 {
		return
	}
	fwd := f
	fwd.TTL = f.TTL - 1
	if fwd.TTL == 0 {
		return
	}
	e.broadcast(arrival, fwd)
}

// --- IP-layer hooks (§4.5) ---

// RouteOutput resolves a destination node number to an outgoing route,
// preferring the forwarding table and falling back to static routes. Called
// by the IP layer from outside the event loop, so the lookup runs through
// submit rather than reading e.state concurrently with the loop's writes.
func (e *Engine) RouteOutput(destNumber int) (Route, error) {
	destIP, ok := e.dir.IPFor(destNumber)
	if !ok {
		return Route{}, errs.ErrNoRoute
	}
	var route Route
	retErr := errs.ErrNoRoute
	e.submit(func(e *Engine) {
		if entry, ok := e.state.Lookup(destIP); ok {
			route = Route{DestIP: entry.DestIP, Gateway: entry.NextHopIP, Interface: entry.OutgoingInterfaceIP}
			retErr = nil
			return
		}
		if addr, err := netip.ParseAddr(destIP); err == nil {
			if r, ok := e.static.Lookup(addr); ok {
				route = r
				retErr = nil
			}
		}
	})
	return route, retErr
}

// RouteInput decides what to do with a packet arriving from srcIP bound
// for dstIP: drop local-origin loops, deliver local destinations, or
// forward per the forwarding table or the static fallback.
func (e *Engine) RouteInput(srcIP, dstIP string) (RouteAction, Route, error) {
	if srcIP == e.selfIP {
		return RouteDrop, Route{}, nil
	}
	if e.isLocalAddr(dstIP) {
		return RouteLocalDeliver, Route{}, nil
	}
	var action RouteAction = RouteDrop
	var route Route
	retErr := errs.ErrNoRoute
	e.submit(func(e *Engine) {
		if entry, ok := e.state.Lookup(dstIP); ok {
			action = RouteForward
			route = Route{DestIP: entry.DestIP, Gateway: entry.NextHopIP, Interface: entry.OutgoingInterfaceIP}
			retErr = nil
			return
		}
		if addr, err := netip.ParseAddr(dstIP); err == nil {
			if r, ok := e.static.Lookup(addr); ok {
				action = RouteForward
				route = r
				retErr = nil
			}
		}
	})
	return action, route, retErr
}

func (e *Engine) isLocalAddr(ip string) bool {
	if ip == e.selfIP {
		return true
	}
	for _, s := range e.sockets {
		if s.ifaceIP == ip {
			return true
		}
	}
	return false
}

// --- Ping (shared audit pattern with cde.Engine, §4.13) ---

// Ping issues an LSR-layer ping to destIP over the first bound socket.
// Called from outside the event loop (the operator console), so it routes
// through submit rather than touching e.pings/e.nextTxn directly.
func (e *Engine) Ping(destIP, message string) {
	e.submit(func(e *Engine) {
		txn := e.nextTxnSeq()
		e.pings.Start(txn, destIP, message)
		e.send(e.sockets[0], destIP, wire.LSRFrame{Tag: wire.LSRPingReq, TxnSeq: txn, TTL: 1, Originator: e.selfIP, Ping: &wire.PingPayload{DestIP: destIP, Message: message}})
	})
}

func (e *Engine) pingAudit() {
	for _, p := range e.pings.ExpireOlderThan(e.pingTimeout) {
		e.met.PingTimeouts.Inc()
		e.lgr.Warn("lsr ping timed out", logger.F("dest", p.DestIP), logger.F("message", p.Message))
	}
}

// --- Debug dump ---

// DumpRoutes returns a snapshot of the forwarding table. Called from the
// operator console, so it reads e.state through submit rather than racing
// the event loop's own writes to it.
func (e *Engine) DumpRoutes() []ForwardingEntry {
	var out []ForwardingEntry
	e.submit(func(e *Engine) {
		fwd := e.state.Forwarding()
		out = make([]ForwardingEntry, 0, len(fwd))
		for _, entry := range fwd {
			out = append(out, entry)
		}
	})
	return out
}

// DumpNeighbors returns a snapshot of the committed neighbor set.
func (e *Engine) DumpNeighbors() []NeighborInfo {
	var out []NeighborInfo
	e.submit(func(e *Engine) {
		neighbors := e.state.StableNeighbors()
		out = make([]NeighborInfo, 0, len(neighbors))
		for _, n := range neighbors {
			out = append(out, n)
		}
	})
	return out
}

// LSARow is one node's advertised LSP, labeled with its originator for
// operator-facing dumps (TopologyEntry itself carries no originator field).
type LSARow struct {
	Originator string
	Seq        uint64
	Neighbors  []string
}

// DumpLSA returns a snapshot of the topology database's LSP rows.
func (e *Engine) DumpLSA() []LSARow {
	var out []LSARow
	e.submit(func(e *Engine) {
		topo := e.state.Topology()
		out = make([]LSARow, 0, len(topo))
		for originator, entry := range topo {
			out = append(out, LSARow{Originator: originator, Seq: entry.Seq, Neighbors: entry.Neighbors})
		}
	})
	return out
}
