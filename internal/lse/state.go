// Package lse implements the Link-State Engine: neighbor discovery, LSP
// flooding, Dijkstra shortest-path recomputation, and the IP-layer
// RouteOutput/RouteInput hooks. State here is never touched by more than
// one goroutine: engine.go's single event loop owns it exclusively.
package lse

// NeighborInfo is what one round of ND_RSP traffic tells us about a
// neighbor: its main address and which local interface heard it.
type NeighborInfo struct {
	NeighborIP  string
	InterfaceIP string
}

// TopologyEntry is one node's advertised LSP, as last accepted.
type TopologyEntry struct {
	Seq       uint64
	Neighbors []string // dotted-decimal IPv4 addresses the originator advertised
}

// ForwardingEntry is one row of the forwarding table.
type ForwardingEntry struct {
	DestIP              string
	NextHopNode         int
	NextHopIP           string
	OutgoingInterfaceIP string
	Cost                int
}

// State holds one node's link-state protocol state: neighbor sets, the
// topology database, LSP dedup bookkeeping, and the derived forwarding
// table. selfIP is this node's main address, excluded from every table.
type State struct {
	selfIP string

	currentNeighbors map[string]NeighborInfo // keyed by neighbor IP, this round
	stableNeighbors  map[string]NeighborInfo // keyed by neighbor IP, committed

	topology map[string]TopologyEntry // keyed by originator IP
	seenLSP  map[string]uint64        // keyed by originator IP

	lspSeq uint64

	forwarding map[string]ForwardingEntry // keyed by dest IP

	resolve func(ip string) (number int, ok bool)
}

// NewState builds empty link-state bookkeeping for selfIP. resolve maps a
// main IP address back to a directory node number; RecomputeForwarding uses
// it to skip destinations the directory cannot resolve and to populate
// ForwardingEntry.NextHopNode for operator-facing dumps.
func NewState(selfIP string, resolve func(ip string) (int, bool)) *State {
	return &State{
		selfIP:           selfIP,
		currentNeighbors: make(map[string]NeighborInfo),
		stableNeighbors:  make(map[string]NeighborInfo),
		topology:         make(map[string]TopologyEntry),
		seenLSP:          make(map[string]uint64),
		forwarding:       make(map[string]ForwardingEntry),
		resolve:          resolve,
	}
}

// RecordNeighbor records one ND_RSP heard this round.
func (s *State) RecordNeighbor(neighborIP, interfaceIP string) {
	s.currentNeighbors[neighborIP] = NeighborInfo{NeighborIP: neighborIP, InterfaceIP: interfaceIP}
}

// CommitRound compares CurrentNeighborSet against StableNeighborSet,
// commits the round, and clears CurrentNeighborSet for the next probe. It
// reports whether membership, neighbor IP, or interface IP changed.
func (s *State) CommitRound() bool {
	changed := len(s.currentNeighbors) != len(s.stableNeighbors)
	if !changed {
		for ip, cur := range s.currentNeighbors {
			prev, ok := s.stableNeighbors[ip]
			if !ok || prev != cur {
				changed = true
				break
			}
		}
	}
	s.stableNeighbors = s.currentNeighbors
	s.currentNeighbors = make(map[string]NeighborInfo)
	return changed
}

// StableNeighbors returns the committed neighbor set.
func (s *State) StableNeighbors() map[string]NeighborInfo {
	return s.stableNeighbors
}

// NextLSPSeq increments and returns the next sequence number to originate.
func (s *State) NextLSPSeq() uint64 {
	s.lspSeq++
	return s.lspSeq
}

// ApplyLSP applies a received LSP, reporting whether it was newer than
// anything already seen from originator (and thus was recorded and should
// be forwarded/recomputed) versus a stale duplicate to drop.
func (s *State) ApplyLSP(originatorIP string, seq uint64, neighbors []string) bool {
	if seq <= s.seenLSP[originatorIP] {
		return false
	}
	s.seenLSP[originatorIP] = seq
	s.topology[originatorIP] = TopologyEntry{Seq: seq, Neighbors: neighbors}
	return true
}

// dijkstraEntry tracks one node's best known distance during recomputation.
type dijkstraEntry struct {
	dist       int
	nextHopIP  string
	order      int // insertion order, for deterministic tie-breaking
	settled    bool
}

// advertises reports whether node u's topology entry lists v among its
// neighbors. selfIP's own adjacency is the StableNeighborSet, not the
// topology DB, since a node never floods an LSP about itself into its own
// TopologyDB.
func (s *State) advertises(u, v string) bool {
	if u == s.selfIP {
		_, ok := s.stableNeighbors[v]
		return ok
	}
	entry, ok := s.topology[u]
	if !ok {
		return false
	}
	for _, n := range entry.Neighbors {
		if n == v {
			return true
		}
	}
	return false
}

// neighborsOf returns the IPs node u advertises, reading the stable
// neighbor set for selfIP and the topology DB for every other node.
func (s *State) neighborsOf(u string) []string {
	if u == s.selfIP {
		out := make([]string, 0, len(s.stableNeighbors))
		for ip := range s.stableNeighbors {
			out = append(out, ip)
		}
		return out
	}
	return s.topology[u].Neighbors
}

// RecomputeForwarding runs Dijkstra over TopologyDB plus the local
// StableNeighborSet and rebuilds the forwarding table. Destinations that
// resolve cannot map to a directory node number are skipped per §4.4.
func (s *State) RecomputeForwarding() {
	dist := make(map[string]*dijkstraEntry)
	order := 0

	for ip, info := range s.stableNeighbors {
		order++
		dist[ip] = &dijkstraEntry{dist: 1, nextHopIP: info.NeighborIP, order: order}
	}

	for {
		// Linear scan for the unsettled node with minimum (dist, order):
		// teaching-scale networks make a heap unwarranted here.
		var u string
		best := -1
		for ip, e := range dist {
			if e.settled {
				continue
			}
			if best == -1 || e.dist < dist[u].dist || (e.dist == dist[u].dist && e.order < dist[u].order) {
				u, best = ip, e.dist
			}
		}
		if best == -1 {
			break
		}
		dist[u].settled = true

		for _, v := range s.neighborsOf(u) {
			if v == s.selfIP {
				continue
			}
			if !s.advertises(v, u) {
				continue // undirected confirmation fails: stale half-edge
			}
			cand := dist[u].dist + 1
			e, ok := dist[v]
			if !ok {
				order++
				dist[v] = &dijkstraEntry{dist: cand, nextHopIP: dist[u].nextHopIP, order: order}
				continue
			}
			if e.settled {
				continue
			}
			if cand < e.dist {
				e.dist = cand
				e.nextHopIP = dist[u].nextHopIP
			}
		}
	}

	forwarding := make(map[string]ForwardingEntry, len(dist))
	for destIP, e := range dist {
		if _, ok := s.resolve(destIP); !ok {
			continue
		}
		nextHopNumber, _ := s.resolve(e.nextHopIP)
		info := s.stableNeighbors[e.nextHopIP]
		forwarding[destIP] = ForwardingEntry{
			DestIP:              destIP,
			NextHopNode:         nextHopNumber,
			NextHopIP:           e.nextHopIP,
			OutgoingInterfaceIP: info.InterfaceIP,
			Cost:                e.dist,
		}
	}
	s.forwarding = forwarding
}

// Lookup returns the forwarding entry for destIP, if one exists.
func (s *State) Lookup(destIP string) (ForwardingEntry, bool) {
	e, ok := s.forwarding[destIP]
	return e, ok
}

// Forwarding returns a snapshot of the forwarding table, for dumps.
func (s *State) Forwarding() map[string]ForwardingEntry {
	return s.forwarding
}

// Topology returns a snapshot of the topology database, for dumps.
func (s *State) Topology() map[string]TopologyEntry {
	return s.topology
}
