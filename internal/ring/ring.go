// Package ring implements the consistent-hash ring partitioner of
// spec.md §4.4: a sorted sequence of per-node ranges over the active
// membership, used to compute a key's natural nodes and a node's
// replica set.
package ring

import (
	"sort"

	"dkv/internal/address"
)

// Slot is one physical node's arc on the ring: (predecessor.end, end].
type Slot struct {
	RangeBegin uint64
	RangeEnd   uint64
	Addr       address.Addr
}

// Ring is a deterministic snapshot of the ring built from one set of
// active addresses. It is immutable after Build; a membership change
// produces a new Ring rather than mutating one in place, matching
// spec.md §9's "shared cluster state ... single owner + snapshot" note.
type Ring struct {
	size  uint64
	slots []Slot
}

// Build computes the ring from a snapshot of active addresses. Given the
// same addrs (same set, same order for tie-breaking) and the same
// ringSize, Build is fully deterministic: positions are sorted by
// pos(addr), each node's range_begin is its predecessor's range_end, and
// the ring wraps. Position ties are broken by the order addrs are given
// in, per spec.md §4.4.
func Build(addrs []address.Addr, ringSize uint64) *Ring {
	type posAddr struct {
		pos  uint64
		addr address.Addr
		seq  int
	}
	pas := make([]posAddr, len(addrs))
	for i, a := range addrs {
		pas[i] = posAddr{pos: address.Pos(a, ringSize), addr: a, seq: i}
	}
	sort.SliceStable(pas, func(i, j int) bool {
		if pas[i].pos != pas[j].pos {
			return pas[i].pos < pas[j].pos
		}
		return pas[i].seq < pas[j].seq
	})

	slots := make([]Slot, len(pas))
	for i, pa := range pas {
		begin := uint64(0)
		if i > 0 {
			begin = slots[i-1].RangeEnd
		}
		slots[i] = Slot{RangeBegin: begin, RangeEnd: pa.pos, Addr: pa.addr}
	}
	if len(slots) > 0 {
		// Wrap: the first node's begin is the last node's end.
		slots[0].RangeBegin = slots[len(slots)-1].RangeEnd
	}

	return &Ring{size: ringSize, slots: slots}
}

// Len returns the number of nodes on the ring.
func (r *Ring) Len() int {
	return len(r.slots)
}

// Slots returns the ring's slots in ascending range_end order. The
// returned slice must not be mutated by the caller.
func (r *Ring) Slots() []Slot {
	return r.slots
}

// lowerBound returns the index of the first slot with RangeEnd >= pos,
// wrapping to 0 if pos is past every slot.
func (r *Ring) lowerBound(pos uint64) int {
	idx := sort.Search(len(r.slots), func(i int) bool {
		return r.slots[i].RangeEnd >= pos
	})
	if idx >= len(r.slots) {
		idx = 0
	}
	return idx
}

// NaturalNodes returns the first rf distinct members starting from
// lower_bound(ring, pos(key)) and wrapping, per spec.md §4.4/GLOSSARY. If
// the ring has fewer than rf nodes, it degrades gracefully and returns
// all of them (spec.md §8 boundary behavior).
func (r *Ring) NaturalNodes(key string, rf int) []address.Addr {
	if len(r.slots) == 0 || rf <= 0 {
		return nil
	}
	start := r.lowerBound(address.PosKey(key, r.size))
	return r.window(start, rf)
}

// ReplicaSet returns a contiguous window of up to 2*rf-1 ring positions
// centered on addr, together with addr's index within that window, per
// spec.md §4.4. The window alternately extends left and right from addr
// until it holds rf distinct members on each side or the ring is
// exhausted. If addr is not on the ring, ReplicaSet returns (nil, -1).
func (r *Ring) ReplicaSet(addr address.Addr, rf int) ([]address.Addr, int) {
	center := -1
	for i, s := range r.slots {
		if s.Addr == addr {
			center = i
			break
		}
	}
	if center < 0 {
		return nil, -1
	}
	n := len(r.slots)

	// Alternately take one more slot on the left, then on the right, until
	// each side holds rf-1 members or every other slot is in the window.
	left, right := 0, 0
	for left+right < n-1 && (left < rf-1 || right < rf-1) {
		if left < rf-1 {
			left++
		}
		if left+right < n-1 && right < rf-1 {
			right++
		}
	}

	start := (center - left + n) % n
	width := left + right + 1
	if width > n {
		width = n
	}

	window := r.window(start, width)
	selfIdx := (center - start + n) % n
	return window, selfIdx
}

// SlotFor returns the ring slot owned by addr and its index, or
// (Slot{}, -1, false) if addr is not on the ring. Used by the DHT
// backend to determine the arc a successor now owns after a ring
// change, per spec.md §4.5's anti-entropy trigger.
func (r *Ring) SlotFor(addr address.Addr) (Slot, int, bool) {
	for i, s := range r.slots {
		if s.Addr == addr {
			return s, i, true
		}
	}
	return Slot{}, -1, false
}

// InArc reports whether pos falls within the half-open, wrap-aware arc
// (begin, end].
func InArc(begin, end, pos uint64) bool {
	if begin < end {
		return pos > begin && pos <= end
	}
	// Wrapped arc: everything above begin or at/below end.
	return pos > begin || pos <= end
}

// window walks forward from slot index start, collecting up to count
// distinct node addresses, wrapping as needed.
func (r *Ring) window(start, count int) []address.Addr {
	n := len(r.slots)
	if count > n {
		count = n
	}
	out := make([]address.Addr, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, r.slots[(start+i)%n].Addr)
	}
	return out
}
