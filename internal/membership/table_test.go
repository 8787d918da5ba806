package membership

import (
	"testing"

	"dkv/internal/address"
)

func TestIncorporateUnknownInserts(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)

	if inserted := tbl.Incorporate(b, 5, 10); !inserted {
		t.Fatalf("expected insertion for unknown peer")
	}
	if !tbl.IsActive(b) {
		t.Fatalf("expected b to be active")
	}
	hb, ok := tbl.Heartbeat(b)
	if !ok || hb != 5 {
		t.Fatalf("expected heartbeat 5, got %d ok=%v", hb, ok)
	}
}

func TestIncorporateStaleIsNoop(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 5, 10)

	if inserted := tbl.Incorporate(b, 5, 20); inserted {
		t.Fatalf("equal heartbeat must not be treated as insertion")
	}
	hb, _ := tbl.Heartbeat(b)
	if hb != 5 {
		t.Fatalf("stale/equal heartbeat must not update stored value, got %d", hb)
	}

	if inserted := tbl.Incorporate(b, 3, 30); inserted {
		t.Fatalf("lower heartbeat must not be treated as insertion")
	}
	hb, _ = tbl.Heartbeat(b)
	if hb != 5 {
		t.Fatalf("lower heartbeat must not update stored value, got %d", hb)
	}
}

func TestIncorporateNeverAddsSelf(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	if tbl.Incorporate(self, 5, 10) {
		t.Fatalf("self must never be inserted into the table")
	}
	if tbl.IsActive(self) {
		t.Fatalf("self must never be marked active")
	}
}

func TestIncorporateResurrectsFromFailed(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 5, 0)
	NewDetector(5, 20).Run(tbl, 5)
	if !tbl.IsFailed(b) {
		t.Fatalf("expected b to be failed after TFAIL")
	}

	if inserted := tbl.Incorporate(b, 6, 6); inserted {
		t.Fatalf("resurrection is not a fresh insertion")
	}
	if !tbl.IsActive(b) || tbl.IsFailed(b) {
		t.Fatalf("expected b to be resurrected into active")
	}
}

func TestIncorporateIgnoresStaleFailedEntry(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 5, 0)
	NewDetector(5, 20).Run(tbl, 5)

	tbl.Incorporate(b, 5, 6)
	if !tbl.IsFailed(b) {
		t.Fatalf("stale heartbeat must not resurrect a failed entry")
	}
}

func TestOnHeartbeatResurrectsFailed(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 1, 0)
	NewDetector(5, 20).Run(tbl, 5)

	if resurrected := tbl.OnHeartbeat(b, 2, 6); !resurrected {
		t.Fatalf("expected OnHeartbeat to resurrect failed peer")
	}
	if !tbl.IsActive(b) {
		t.Fatalf("expected b active after heartbeat resurrection")
	}
}

func TestOnHeartbeatRefreshesActiveOnlyWhenGreater(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	tbl.Incorporate(b, 5, 0)

	tbl.OnHeartbeat(b, 5, 100)
	hb, _ := tbl.Heartbeat(b)
	if hb != 5 {
		t.Fatalf("equal heartbeat must not update, got %d", hb)
	}

	tbl.OnHeartbeat(b, 6, 100)
	hb, _ = tbl.Heartbeat(b)
	if hb != 6 {
		t.Fatalf("expected refreshed heartbeat 6, got %d", hb)
	}
}

func TestMemberListMirrorsActive(t *testing.T) {
	self := address.New(1, 0)
	tbl := New(self)
	b := address.New(2, 0)
	c := address.New(3, 0)
	tbl.Incorporate(b, 1, 0)
	tbl.Incorporate(c, 1, 0)

	list := tbl.MemberList()
	if len(list) != 2 {
		t.Fatalf("expected 2 members, got %d", len(list))
	}
	seen := map[address.Addr]bool{}
	for _, a := range list {
		seen[a] = true
	}
	if !seen[b] || !seen[c] {
		t.Fatalf("memberList missing expected entries: %v", list)
	}
}
