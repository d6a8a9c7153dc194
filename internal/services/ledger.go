package services

import (
	"sync"

	"github.com/ajramos/mailsync/internal/mailapi"
)

type flagField int

const (
	fieldRead flagField = iota
	fieldStarred
)

// override is one local change that fetched data must not undo.
// confirmedAt is the ledger sequence at server confirmation, zero while pending.
// Confirmation advances the sequence, so it is never zero once set.
type override struct {
	value       bool
	token       string
	confirmedAt uint64
}

type ledgerEntry struct {
	read    *override
	starred *override
	removed *override
}

func (e *ledgerEntry) field(f flagField) **override {
	if f == fieldRead {
		return &e.read
	}
	return &e.starred
}

func (e *ledgerEntry) empty() bool {
	return e.read == nil && e.starred == nil && e.removed == nil
}

// mutationLedger keeps optimistic changes alive across fetches that started
// before the server applied them. Fetches take a mark when they start and
// release it when done; an override is re-applied to their result unless it
// was confirmed before the mark. Confirmed overrides are dropped once no
// fetch older than the confirmation is outstanding.
type mutationLedger struct {
	mu      sync.Mutex
	seq     uint64
	open    map[uint64]struct{}
	entries map[int64]*ledgerEntry
}

func newMutationLedger() *mutationLedger {
	return &mutationLedger{
		open:    make(map[uint64]struct{}),
		entries: make(map[int64]*ledgerEntry),
	}
}

func (l *mutationLedger) mark() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.open[l.seq] = struct{}{}
	return l.seq
}

func (l *mutationLedger) release(mark uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.open, mark)
	l.sweepLocked()
}

// sweepLocked drops confirmed overrides no outstanding fetch can still need
func (l *mutationLedger) sweepLocked() {
	floor := l.seq + 1
	for m := range l.open {
		floor = min(floor, m)
	}
	expired := func(p **override) {
		if o := *p; o != nil && o.confirmedAt != 0 && o.confirmedAt < floor {
			*p = nil
		}
	}
	for id, e := range l.entries {
		expired(&e.read)
		expired(&e.starred)
		expired(&e.removed)
		if e.empty() {
			delete(l.entries, id)
		}
	}
}

func (l *mutationLedger) entry(id int64) *ledgerEntry {
	e, ok := l.entries[id]
	if !ok {
		e = &ledgerEntry{}
		l.entries[id] = e
	}
	return e
}

func (l *mutationLedger) setFlag(id int64, f flagField, value bool, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entry(id).field(f) = &override{value: value, token: token}
}

func (l *mutationLedger) setRemoved(id int64, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(id).removed = &override{value: true, token: token}
}

// owns reports whether token is still the latest change of the field
func (l *mutationLedger) owns(id int64, f flagField, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return false
	}
	o := *e.field(f)
	return o != nil && o.token == token
}

func (l *mutationLedger) confirmFlag(id int64, f flagField, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		if o := *e.field(f); o != nil && o.token == token {
			l.seq++
			o.confirmedAt = l.seq
		}
	}
	l.sweepLocked()
}

func (l *mutationLedger) confirmRemoved(id int64, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok && e.removed != nil && e.removed.token == token {
		l.seq++
		e.removed.confirmedAt = l.seq
	}
	l.sweepLocked()
}

func (l *mutationLedger) dropFlag(id int64, f flagField, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if p := e.field(f); *p != nil && (*p).token == token {
		*p = nil
	}
	if e.empty() {
		delete(l.entries, id)
	}
}

func (l *mutationLedger) dropRemoved(id int64, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if e.removed != nil && e.removed.token == token {
		e.removed = nil
	}
	if e.empty() {
		delete(l.entries, id)
	}
}

// live reports whether o must be applied to data fetched at mark.
// Overrides confirmed before the mark are already reflected in the data.
func live(o *override, mark uint64) bool {
	return o != nil && (o.confirmedAt == 0 || mark <= o.confirmedAt)
}

// apply patches items fetched at mark and filters out locally removed ones
func (l *mutationLedger) apply(items []mailapi.MessageSummary, mark uint64) []mailapi.MessageSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		e, ok := l.entries[it.ID]
		if !ok {
			out = append(out, it)
			continue
		}
		if live(e.read, mark) {
			it.IsRead = e.read.value
		}
		if live(e.starred, mark) {
			it.IsStarred = e.starred.value
		}
		if !live(e.removed, mark) {
			out = append(out, it)
		}
	}
	return out
}

// applyOne patches a single summary; it reports false if the message is locally removed
func (l *mutationLedger) applyOne(m *mailapi.MessageSummary, mark uint64) bool {
	res := l.apply([]mailapi.MessageSummary{*m}, mark)
	if len(res) == 0 {
		return false
	}
	*m = res[0]
	return true
}

func (l *mutationLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
