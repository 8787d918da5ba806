package ring

import (
	"testing"

	"dkv/internal/address"
)

func TestSlotForFindsOwner(t *testing.T) {
	as := addrs(4)
	r := Build(as, 1<<16)
	slot, idx, ok := r.SlotFor(as[0])
	if !ok {
		t.Fatalf("expected to find slot for %v", as[0])
	}
	if r.Slots()[idx].Addr != as[0] {
		t.Fatalf("index %d does not match addr %v", idx, as[0])
	}
	if slot.Addr != as[0] {
		t.Fatalf("returned slot addr mismatch")
	}
}

func TestSlotForUnknownAddr(t *testing.T) {
	as := addrs(4)
	r := Build(as, 1<<16)
	_, idx, ok := r.SlotFor(address.New(999, 0))
	if ok || idx != -1 {
		t.Fatalf("expected not-found for absent address")
	}
}

func TestInArcNonWrapped(t *testing.T) {
	if !InArc(10, 20, 15) {
		t.Fatalf("15 should be in (10,20]")
	}
	if InArc(10, 20, 10) {
		t.Fatalf("10 should not be in (10,20] (exclusive begin)")
	}
	if !InArc(10, 20, 20) {
		t.Fatalf("20 should be in (10,20] (inclusive end)")
	}
	if InArc(10, 20, 25) {
		t.Fatalf("25 should not be in (10,20]")
	}
}

func TestInArcWrapped(t *testing.T) {
	if !InArc(60000, 100, 65000) {
		t.Fatalf("65000 should be in wrapped arc (60000,100]")
	}
	if !InArc(60000, 100, 50) {
		t.Fatalf("50 should be in wrapped arc (60000,100]")
	}
	if InArc(60000, 100, 50000) {
		t.Fatalf("50000 should not be in wrapped arc (60000,100]")
	}
}
