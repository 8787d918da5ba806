package membership

import (
	"testing"

	"dkv/internal/address"
)

func TestDetectorFailsAtExactlyTFail(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 1, 0)

	d := NewDetector(5, 20)
	failed, removed := d.Run(tbl, 4)
	if len(failed) != 0 || len(removed) != 0 {
		t.Fatalf("expected no transition before TFAIL, got failed=%v removed=%v", failed, removed)
	}
	if !tbl.IsActive(b) {
		t.Fatalf("expected b still active at now=4")
	}

	failed, removed = d.Run(tbl, 5)
	if len(failed) != 1 || failed[0] != b {
		t.Fatalf("expected b to fail exactly at TFAIL, got %v", failed)
	}
	if len(removed) != 0 {
		t.Fatalf("expected no removal yet, got %v", removed)
	}
	if !tbl.IsFailed(b) {
		t.Fatalf("expected b failed")
	}
}

func TestDetectorRemovesAtExactlyTRemove(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 1, 0)

	d := NewDetector(5, 20)
	d.Run(tbl, 5)
	if !tbl.IsFailed(b) {
		t.Fatalf("expected b failed at t=5")
	}

	_, removed := d.Run(tbl, 19)
	if len(removed) != 0 {
		t.Fatalf("expected no removal before TREMOVE, got %v", removed)
	}

	_, removed = d.Run(tbl, 20)
	if len(removed) != 1 || removed[0] != b {
		t.Fatalf("expected b removed exactly at TREMOVE, got %v", removed)
	}
	if tbl.IsFailed(b) {
		t.Fatalf("expected b purged from failed")
	}
}

func TestDetectorMemberListDropsFailedEntries(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	c := address.New(3, 0)
	tbl.Incorporate(b, 1, 0)
	tbl.Incorporate(c, 1, 0)
	tbl.Incorporate(c, 2, 4) // c refreshed just before the sweep

	d := NewDetector(5, 20)
	d.Run(tbl, 5)

	list := tbl.MemberList()
	if len(list) != 1 || list[0] != c {
		t.Fatalf("expected memberList to contain only c after b fails, got %v", list)
	}
}
