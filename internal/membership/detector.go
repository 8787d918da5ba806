package membership

import "dkv/internal/address"

// Detector implements the per-tick failure detector of spec.md §4.2:
// active peers time out to failed after TFAIL ticks of silence, and
// failed peers are purged after TREMOVE.
type Detector struct {
	TFail   int64
	TRemove int64
}

// NewDetector constructs a Detector with the given tunables. TREMOVE
// must be >= TFAIL per spec.md §6.
func NewDetector(tfail, tremove int64) *Detector {
	return &Detector{TFail: tfail, TRemove: tremove}
}

// Run executes one failure-detector pass against t at local clock now,
// returning the peers that just transitioned active->failed and
// failed->removed in this pass.
func (d *Detector) Run(t *Table, now int64) (justFailed, justRemoved []address.Addr) {
	// Reconcile memberList with active: entries may have been dropped
	// elsewhere (there is none today, but the invariant is maintained
	// defensively per spec.md §4.2 step 1).
	kept := t.memberList[:0:0]
	for _, a := range t.memberList {
		if _, ok := t.active[a]; ok {
			kept = append(kept, a)
		}
	}
	t.memberList = kept

	for a, e := range t.active {
		if now-e.LastSeen >= d.TFail {
			delete(t.active, a)
			t.failed[a] = e
			justFailed = append(justFailed, a)
		}
	}
	if len(justFailed) > 0 {
		filtered := t.memberList[:0:0]
		for _, a := range t.memberList {
			if _, ok := t.active[a]; ok {
				filtered = append(filtered, a)
			}
		}
		t.memberList = filtered
	}

	for a, e := range t.failed {
		if now-e.LastSeen >= d.TRemove {
			delete(t.failed, a)
			justRemoved = append(justRemoved, a)
		}
	}
	return justFailed, justRemoved
}
