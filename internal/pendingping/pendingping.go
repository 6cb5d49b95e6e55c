// Package pendingping implements the transaction-keyed ping tracker shared
// by the Link-State Engine and the Chord DHT Engine (spec §4.13): both
// engines issue a unicast PING_REQ, index the outstanding request by its
// transaction sequence number, and expunge it if no PING_RSP arrives within
// a timeout. Neither engine reaches into the other's instance; each owns
// its own Tracker.
package pendingping

import "time"

// Entry describes one outstanding ping.
type Entry struct {
	DestIP  string
	SentAt  time.Time
	Message string
}

// Tracker holds outstanding ping transactions for one engine instance.
type Tracker struct {
	entries map[uint32]Entry
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[uint32]Entry)}
}

// Start records a newly sent ping under txn.
func (t *Tracker) Start(txn uint32, destIP, message string) {
	t.entries[txn] = Entry{DestIP: destIP, SentAt: time.Now(), Message: message}
}

// Resolve removes and returns the entry for txn, reporting whether one existed.
func (t *Tracker) Resolve(txn uint32) (Entry, bool) {
	e, ok := t.entries[txn]
	if ok {
		delete(t.entries, txn)
	}
	return e, ok
}

// ExpireOlderThan removes and returns every entry older than timeout.
func (t *Tracker) ExpireOlderThan(timeout time.Duration) []Entry {
	now := time.Now()
	var expired []Entry
	for txn, e := range t.entries {
		if now.Sub(e.SentAt) > timeout {
			expired = append(expired, e)
			delete(t.entries, txn)
		}
	}
	return expired
}

// Len reports the number of outstanding pings.
func (t *Tracker) Len() int { return len(t.entries) }
