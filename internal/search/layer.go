package search

import (
	"context"
	"fmt"
	"net"
	"sync"

	"overlaysearch/internal/ctxutil"
	"overlaysearch/internal/domain"
	"overlaysearch/internal/logger"
	"overlaysearch/internal/storage"
	"overlaysearch/internal/wire"
)

// Lookuper is the subset of cde.Engine the Search Layer drives. Kept as an
// interface, not a direct *cde.Engine field type, so this package never
// needs to import cde for anything but satisfying its SL callback
// interface at the wiring site in cmd/node.
type Lookuper interface {
	Lookup(ctx context.Context, key string, flag wire.LookupFlag)
}

type pendingPublish struct {
	docID string
	done  chan struct{}
}

// searchJob is the state machine for one in-flight multi-term AND query:
// term 0 seeds the running result via FlagSearchInitial, every later term
// intersects it via FlagSearchStep.
type searchJob struct {
	terms  []string
	next   int
	result []string
	done   chan struct{}
	err    error
}

// Layer is the Search Layer: it implements cde.SL's three upcalls, owns
// the local inverted index, and runs the small posting-transfer protocol
// needed to actually move a posting list to/from whichever node CDE
// resolves as responsible.
type Layer struct {
	lgr   logger.Logger
	space domain.Space
	ix    *index
	sock  *socket
	self  *domain.Node

	engine Lookuper

	mu             sync.Mutex
	pendingPublish map[string][]pendingPublish // term -> FIFO queue of docIDs awaiting resolution
	pendingSearch  map[string][]*searchJob     // term -> FIFO queue of jobs with an outstanding lookup for that term
	nextTxn        uint32
	pendingGet     map[uint32]chan wire.GetPostingsRespPayload
}

// New builds the Search Layer, binding its own UDP socket on slPort.
func New(space domain.Space, self *domain.Node, bindHost string, slPort int, lgr logger.Logger) (*Layer, error) {
	sock, err := newSocket(bindHost, slPort)
	if err != nil {
		return nil, err
	}
	l := &Layer{
		lgr:            lgr,
		space:          space,
		ix:             newIndex(space, storage.NewMemoryStorage(lgr)),
		sock:           sock,
		self:           self,
		pendingPublish: make(map[string][]pendingPublish),
		pendingSearch:  make(map[string][]*searchJob),
		pendingGet:     make(map[uint32]chan wire.GetPostingsRespPayload),
	}
	return l, nil
}

// SetEngine wires the Layer to the CDE engine it drives. Called once, after
// cde.NewEngine returns, since the engine's constructor requires an SL
// implementation up front.
func (l *Layer) SetEngine(e Lookuper) { l.engine = e }

// Run services the Layer's own socket until ctx is canceled.
func (l *Layer) Run(ctx context.Context) error {
	go l.readLoop()
	<-ctx.Done()
	return l.sock.close()
}

func (l *Layer) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := l.sock.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame, err := wire.DecodeSLFrame(buf[:n])
		if err != nil {
			l.lgr.Debug("dropping malformed sl frame", logger.F("err", err.Error()), logger.F("from", addr.String()))
			continue
		}
		l.handleFrame(frame)
	}
}

func (l *Layer) handleFrame(f wire.SLFrame) {
	switch f.Tag {
	case wire.StorePosting:
		l.ix.addPosting(f.StorePosting.Term, f.StorePosting.DocID)
	case wire.GetPostingsReq:
		p := f.GetPostingsReq
		resp := wire.SLFrame{Tag: wire.GetPostingsResp, TxnSeq: f.TxnSeq, GetPostingsResp: &wire.GetPostingsRespPayload{
			Term:   p.Term,
			DocIDs: l.ix.postings(p.Term),
		}}
		if err := l.sock.send(p.ReplyTo, resp); err != nil {
			l.lgr.Debug("sl send failed", logger.F("to", p.ReplyTo), logger.F("err", err.Error()))
		}
	case wire.GetPostingsResp:
		l.mu.Lock()
		ch, ok := l.pendingGet[f.TxnSeq]
		if ok {
			delete(l.pendingGet, f.TxnSeq)
		}
		l.mu.Unlock()
		if ok {
			ch <- *f.GetPostingsResp
		}
	}
}

// Publish resolves the node responsible for term via CDE's lookup and adds
// docID to that node's posting list for term, blocking until the lookup
// resolves and the posting has been stored (locally or over the wire).
func (l *Layer) Publish(ctx context.Context, term, docID string) {
	ctx = ctxutil.EnsureTraceID(ctx, l.self.ID)
	l.lgr.Debug("publish started", logger.F("trace", ctxutil.TraceIDFromContext(ctx)), logger.F("term", term), logger.F("doc", docID))

	done := make(chan struct{})
	l.mu.Lock()
	l.pendingPublish[term] = append(l.pendingPublish[term], pendingPublish{docID: docID, done: done})
	l.mu.Unlock()
	l.engine.Lookup(ctx, term, wire.FlagPublish)
	<-done
}

// Search runs a multi-term AND query, blocking until every term has been
// resolved and intersected. An empty terms list returns no results. Each
// call registers its own job, so concurrent Search calls (the harness can
// run several in parallel per wave) never share state.
func (l *Layer) Search(ctx context.Context, terms []string) ([]string, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	ctx = ctxutil.EnsureTraceID(ctx, l.self.ID)
	l.lgr.Debug("search started", logger.F("trace", ctxutil.TraceIDFromContext(ctx)), logger.F("terms", terms))

	job := &searchJob{terms: terms, done: make(chan struct{})}
	l.enqueueSearchStep(terms[0], job)
	l.engine.Lookup(ctx, terms[0], wire.FlagSearchInitial)
	<-job.done
	return job.result, job.err
}

// enqueueSearchStep registers job as awaiting the resolution of term,
// alongside any other job currently waiting on the same term.
func (l *Layer) enqueueSearchStep(term string, job *searchJob) {
	l.mu.Lock()
	l.pendingSearch[term] = append(l.pendingSearch[term], job)
	l.mu.Unlock()
}

// dequeueSearchStep pops the oldest job awaiting term's resolution.
func (l *Layer) dequeueSearchStep(term string) (*searchJob, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.pendingSearch[term]
	if len(queue) == 0 {
		return nil, false
	}
	job := queue[0]
	l.pendingSearch[term] = queue[1:]
	return job, true
}

// OnLookupResult implements cde.SL. flag selects which operation the
// lookup that just resolved was for; key is always the term/ring-key the
// lookup was computed from. CDE invokes this synchronously from its own
// single-threaded event loop (directly on local short-circuit, or from
// handleLookupPublishSuccess on the forwarded path), so the work here must
// hand off to its own goroutine rather than run inline: fetchPostings can
// block on a network round trip and can itself call back into
// engine.Lookup for the next search term, which would deadlock against
// CDE's own loop if done synchronously from within this callback.
func (l *Layer) OnLookupResult(flag wire.LookupFlag, responsible *domain.Node, key string) {
	switch flag {
	case wire.FlagPublish:
		go l.completePublish(responsible, key)
	case wire.FlagSearchInitial, wire.FlagSearchStep:
		go l.fetchPostings(responsible, key)
	}
}

func (l *Layer) completePublish(responsible *domain.Node, term string) {
	l.mu.Lock()
	queue := l.pendingPublish[term]
	if len(queue) == 0 {
		l.mu.Unlock()
		return
	}
	next := queue[0]
	l.pendingPublish[term] = queue[1:]
	l.mu.Unlock()

	if l.isSelf(responsible) {
		l.ix.addPosting(term, next.docID)
	} else if ip, err := hostOf(responsible); err == nil {
		frame := wire.SLFrame{Tag: wire.StorePosting, StorePosting: &wire.StorePostingPayload{Term: term, DocID: next.docID}}
		if err := l.sock.send(ip, frame); err != nil {
			l.lgr.Warn("publish: store failed", logger.F("term", term), logger.F("to", ip), logger.F("err", err.Error()))
		}
	}
	close(next.done)
}

func (l *Layer) fetchPostings(responsible *domain.Node, term string) {
	job, ok := l.dequeueSearchStep(term)
	if !ok {
		l.lgr.Warn("search: no pending job for resolved term", logger.F("term", term))
		return
	}

	var postings []string
	if l.isSelf(responsible) {
		postings = l.ix.postings(term)
	} else {
		ip, err := hostOf(responsible)
		if err != nil {
			l.finishSearchTerm(job, nil, fmt.Errorf("search: bad responsible address: %w", err))
			return
		}
		selfIP, _ := hostOf(l.self)
		l.mu.Lock()
		txn := l.nextTxn
		l.nextTxn++
		ch := make(chan wire.GetPostingsRespPayload, 1)
		l.pendingGet[txn] = ch
		l.mu.Unlock()

		req := wire.SLFrame{Tag: wire.GetPostingsReq, TxnSeq: txn, GetPostingsReq: &wire.GetPostingsReqPayload{ReplyTo: selfIP, Term: term}}
		if err := l.sock.send(ip, req); err != nil {
			l.finishSearchTerm(job, nil, fmt.Errorf("search: request failed: %w", err))
			return
		}
		resp := <-ch
		postings = resp.DocIDs
	}
	l.finishSearchTerm(job, postings, nil)
}

// finishSearchTerm advances job by one term, or closes it out once every
// term has resolved. job is only ever touched by the single goroutine
// currently processing its outstanding term, so no lock is needed for its
// fields; enqueueSearchStep/dequeueSearchStep guard the shared map.
func (l *Layer) finishSearchTerm(job *searchJob, postings []string, err error) {
	if err != nil {
		job.err = err
		close(job.done)
		return
	}
	if job.next == 0 {
		job.result = postings
	} else {
		job.result = intersect(job.result, postings)
	}
	job.next++
	if job.next >= len(job.terms) {
		close(job.done)
		return
	}
	term := job.terms[job.next]
	l.enqueueSearchStep(term, job)
	l.engine.Lookup(context.Background(), term, wire.FlagSearchStep)
}

// OnNewPredecessor implements cde.SL: transfer to p every term this node
// owns that p is now responsible for instead. Every term stored locally was
// already resolved to self under the ring topology at publish time, so it
// lies in (somePriorBound, selfID]; p's arrival narrows that down to
// (somePriorBound, p.ID] moving to p and (p.ID, selfID] staying local. So
// every term whose key is outside (p.ID, selfID] is sent to p; the circular
// interval test also covers ranges that wrap past zero. Local copies are
// kept.
func (l *Layer) OnNewPredecessor(p *domain.Node) {
	if p == nil {
		return
	}
	ip, err := hostOf(p)
	if err != nil {
		return
	}
	for term, postings := range l.ix.allTerms() {
		if l.space.NewIdFromString(term).Between(p.ID, l.self.ID) {
			continue
		}
		for _, docID := range postings {
			frame := wire.SLFrame{Tag: wire.StorePosting, StorePosting: &wire.StorePostingPayload{Term: term, DocID: docID}}
			if err := l.sock.send(ip, frame); err != nil {
				l.lgr.Debug("predecessor handoff send failed", logger.F("term", term), logger.F("err", err.Error()))
			}
		}
	}
}

// OnLeaveHandoff implements cde.SL: bulk-dump every locally owned term to
// the successor before this node detaches from the ring.
func (l *Layer) OnLeaveHandoff(successor *domain.Node) {
	if successor == nil || l.isSelf(successor) {
		return
	}
	ip, err := hostOf(successor)
	if err != nil {
		return
	}
	for term, postings := range l.ix.allTerms() {
		for _, docID := range postings {
			frame := wire.SLFrame{Tag: wire.StorePosting, StorePosting: &wire.StorePostingPayload{Term: term, DocID: docID}}
			if err := l.sock.send(ip, frame); err != nil {
				l.lgr.Debug("leave handoff send failed", logger.F("term", term), logger.F("err", err.Error()))
			}
		}
	}
}

func (l *Layer) isSelf(n *domain.Node) bool {
	return n != nil && l.self != nil && n.ID.Equal(l.self.ID)
}

func hostOf(n *domain.Node) (string, error) {
	if n == nil {
		return "", fmt.Errorf("nil node")
	}
	host, _, err := net.SplitHostPort(n.Addr)
	if err != nil {
		return "", err
	}
	return host, nil
}
