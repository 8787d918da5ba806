// Package membership implements the gossip-based membership table,
// failure detector, dissemination and protocol state machine of
// spec.md §3–§4.3.
package membership

import "dkv/internal/address"

// Entry is a MemberEntry: a monotonic heartbeat counter plus the local
// clock value at which it was last refreshed.
type Entry struct {
	Heartbeat int64
	LastSeen  int64
}

// Table holds the two disjoint active/failed partitions plus the
// ordered memberList mirror used for gossip sampling, per spec.md §3.
// The local node's own entry is never stored here.
type Table struct {
	self       address.Addr
	active     map[address.Addr]*Entry
	failed     map[address.Addr]*Entry
	memberList []address.Addr
}

// New creates an empty Table for self.
func New(self address.Addr) *Table {
	return &Table{
		self:   self,
		active: make(map[address.Addr]*Entry),
		failed: make(map[address.Addr]*Entry),
	}
}

// IsActive reports whether a is currently believed alive.
func (t *Table) IsActive(a address.Addr) bool {
	_, ok := t.active[a]
	return ok
}

// IsFailed reports whether a is currently suspected failed.
func (t *Table) IsFailed(a address.Addr) bool {
	_, ok := t.failed[a]
	return ok
}

// MemberList returns a copy of the ordered active-member mirror, for
// gossip sampling.
func (t *Table) MemberList() []address.Addr {
	out := make([]address.Addr, len(t.memberList))
	copy(out, t.memberList)
	return out
}

// ActiveAddrs returns every active peer address (unordered), suitable
// for building a ring snapshot alongside self.
func (t *Table) ActiveAddrs() []address.Addr {
	out := make([]address.Addr, 0, len(t.active))
	for a := range t.active {
		out = append(out, a)
	}
	return out
}

// Len returns the number of active peers (excluding self).
func (t *Table) Len() int {
	return len(t.active)
}

// Heartbeat returns the stored heartbeat for an active peer, or
// (0, false) if a is not active.
func (t *Table) Heartbeat(a address.Addr) (int64, bool) {
	e, ok := t.active[a]
	if !ok {
		return 0, false
	}
	return e.Heartbeat, true
}

// insertActive adds a brand-new active entry and appends it to
// memberList. Callers must already know a is absent from both maps.
func (t *Table) insertActive(a address.Addr, heartbeat, now int64) {
	t.active[a] = &Entry{Heartbeat: heartbeat, LastSeen: now}
	t.memberList = append(t.memberList, a)
}

// Incorporate applies the entry-incorporation merge rule of spec.md
// §4.1 for one gossiped MemberEntry. It reports whether the entry was
// newly inserted (unknown identity), in which case the caller should
// emit a NodeAdd event.
func (t *Table) Incorporate(a address.Addr, heartbeat, now int64) bool {
	if a == t.self {
		return false
	}
	if e, ok := t.active[a]; ok {
		if heartbeat > e.Heartbeat {
			e.Heartbeat = heartbeat
			e.LastSeen = now
		}
		return false
	}
	if e, ok := t.failed[a]; ok {
		if heartbeat > e.Heartbeat {
			delete(t.failed, a)
			t.insertActive(a, heartbeat, now)
		}
		return false
	}
	t.insertActive(a, heartbeat, now)
	return true
}

// OnHeartbeat applies the HEARTBEAT-specific rule of spec.md §4.1: a
// failed sender is resurrected unconditionally, an active sender is
// refreshed only on a strictly greater heartbeat. An unknown sender is
// ignored (heartbeats are only ever addressed to already-known peers).
func (t *Table) OnHeartbeat(a address.Addr, heartbeat, now int64) (resurrected bool) {
	if a == t.self {
		return false
	}
	if _, ok := t.failed[a]; ok {
		delete(t.failed, a)
		t.insertActive(a, heartbeat, now)
		return true
	}
	if e, ok := t.active[a]; ok {
		if heartbeat > e.Heartbeat {
			e.Heartbeat = heartbeat
			e.LastSeen = now
		}
	}
	return false
}
