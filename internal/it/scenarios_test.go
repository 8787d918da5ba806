// Package it holds end-to-end scenario tests exercising a whole
// simulated cluster, mirroring spec.md §8's six named scenarios.
package it

import (
	"testing"

	"dkv/internal/address"
	"dkv/internal/config"
	"dkv/internal/events"
	"dkv/internal/sim"
)

func cfgFor(self, join address.Addr) *config.Config {
	cfg := config.New(self, "")
	cfg.JoinAddr = join
	return cfg
}

// Scenario 1: cluster formation.
func TestClusterFormation(t *testing.T) {
	c := sim.NewCluster(1)
	a := address.New(1, 0)
	b := address.New(2, 0)

	na := c.AddNode(cfgFor(a, a), events.NullSink{})
	if !na.Membership().InGroup() {
		t.Fatalf("A must declare in-group immediately")
	}
	nb := c.AddNode(cfgFor(b, a), events.NullSink{})

	c.TickN(2)

	if !nb.Membership().InGroup() {
		t.Fatalf("B must be in-group after joining")
	}
	aMembers := na.Membership().Table().MemberList()
	bMembers := nb.Membership().Table().MemberList()
	if len(aMembers) != 1 || aMembers[0] != b {
		t.Fatalf("A's memberList must contain only B, got %v", aMembers)
	}
	if len(bMembers) != 1 || bMembers[0] != a {
		t.Fatalf("B's memberList must contain only A, got %v", bMembers)
	}
}

// Scenario 2: heartbeat propagation.
func TestHeartbeatPropagationAcrossThreeNodes(t *testing.T) {
	c := sim.NewCluster(2)
	a := address.New(1, 0)
	b := address.New(2, 0)
	cc := address.New(3, 0)

	na := c.AddNode(cfgFor(a, a), events.NullSink{})
	nb := c.AddNode(cfgFor(b, a), events.NullSink{})
	nc := c.AddNode(cfgFor(cc, a), events.NullSink{})
	c.TickN(2) // let everyone join and exchange initial memberLists

	before := map[address.Addr]map[address.Addr]int64{a: {}, b: {}, cc: {}}
	for _, peer := range na.Membership().Table().MemberList() {
		hb, _ := na.Membership().Table().Heartbeat(peer)
		before[a][peer] = hb
	}
	for _, peer := range nb.Membership().Table().MemberList() {
		hb, _ := nb.Membership().Table().Heartbeat(peer)
		before[b][peer] = hb
	}
	for _, peer := range nc.Membership().Table().MemberList() {
		hb, _ := nc.Membership().Table().Heartbeat(peer)
		before[cc][peer] = hb
	}

	c.TickN(3)

	assertIncreased := func(self address.Addr, tbl interface {
		MemberList() []address.Addr
		Heartbeat(address.Addr) (int64, bool)
	}) {
		for _, peer := range tbl.MemberList() {
			hb, ok := tbl.Heartbeat(peer)
			if !ok {
				continue
			}
			prev, tracked := before[self][peer]
			if tracked && hb <= prev {
				t.Fatalf("%v's view of %v heartbeat did not strictly increase: %d -> %d", self, peer, prev, hb)
			}
		}
	}
	assertIncreased(a, na.Membership().Table())
	assertIncreased(b, nb.Membership().Table())
	assertIncreased(cc, nc.Membership().Table())
}

// Scenario 3: failure detection.
func TestFailureDetectionAcrossCluster(t *testing.T) {
	c := sim.NewCluster(3)
	a := address.New(1, 0)
	b := address.New(2, 0)
	cc := address.New(3, 0)

	na := c.AddNode(cfgFor(a, a), events.NullSink{})
	nb := c.AddNode(cfgFor(b, a), events.NullSink{})
	sinkC := events.NewRecordingSink()
	_ = c.AddNode(cfgFor(cc, a), sinkC)
	c.TickN(2)

	c.Kill(cc) // no further sends from C

	// C's last heartbeat is still queued when it is killed, so A and B
	// last see it one tick after the kill.
	for i := 0; i < config.DefaultTFail-1; i++ {
		c.Tick()
	}
	if na.Membership().Table().IsFailed(cc) || nb.Membership().Table().IsFailed(cc) {
		t.Fatalf("C should still be active before TFAIL")
	}

	c.Tick() // crosses TFAIL for a and b's view of C
	if !na.Membership().Table().IsFailed(cc) || !nb.Membership().Table().IsFailed(cc) {
		t.Fatalf("expected C failed on both survivors at TFAIL")
	}

	remaining := config.DefaultTRemove - config.DefaultTFail
	for i := 0; i < remaining; i++ {
		c.Tick()
	}
	if na.Membership().Table().IsFailed(cc) || nb.Membership().Table().IsFailed(cc) {
		t.Fatalf("expected C removed on both survivors at TREMOVE")
	}
}

// Scenario 4: CREATE quorum.
func TestCreateQuorumAcrossFiveNodes(t *testing.T) {
	c := sim.NewCluster(4)
	addrs := []address.Addr{
		address.New(1, 0), address.New(2, 0), address.New(3, 0),
		address.New(4, 0), address.New(5, 0),
	}
	join := addrs[0]
	for _, a := range addrs {
		c.AddNode(cfgFor(a, join), events.NullSink{})
	}
	c.TickN(6)

	na, _ := c.Node(addrs[0])
	tid := na.Coordinator().Create("somekey", "v1", c.Net)
	// Replies arrive by the second tick; a finished transaction is pruned
	// more than two ticks after it finishes, so look it up after three.
	c.TickN(3)

	tx, ok := na.Coordinator().Transaction(tid)
	if !ok || !tx.Finished || !tx.Success {
		t.Fatalf("expected CREATE to succeed with full cluster up, tx=%+v ok=%v", tx, ok)
	}
}

// Scenario 5: READ under one replica down.
func TestReadSucceedsWithOneReplicaDown(t *testing.T) {
	c := sim.NewCluster(5)
	addrs := []address.Addr{
		address.New(1, 0), address.New(2, 0), address.New(3, 0),
		address.New(4, 0), address.New(5, 0),
	}
	join := addrs[0]
	for _, a := range addrs {
		c.AddNode(cfgFor(a, join), events.NullSink{})
	}
	c.TickN(6)

	na, _ := c.Node(addrs[0])
	tid := na.Coordinator().Create("readme", "v1", c.Net)
	c.TickN(3) // finished transactions are pruned after two more ticks
	if tx, ok := na.Coordinator().Transaction(tid); !ok || !tx.Success {
		t.Fatalf("setup CREATE must succeed before the read test")
	}

	// Any single replica down still leaves 2 of 3 responding, which
	// satisfies quorum regardless of which one it is; addrs[1] stands
	// in for "the replica with lowest ring position."
	c.Kill(addrs[1])
	c.TickN(config.DefaultTFail + 1)

	rtid := na.Coordinator().Read("readme", c.Net)
	c.TickN(3)
	tx, ok := na.Coordinator().Transaction(rtid)
	if !ok || !tx.Finished || !tx.Success {
		t.Fatalf("expected READ success under one replica down, tx=%+v ok=%v", tx, ok)
	}
	if tx.ReadValue != "v1" {
		t.Fatalf("expected read value v1, got %q", tx.ReadValue)
	}
}

// Scenario 6: anti-entropy on ring change.
func TestAntiEntropyOnNodeRemoval(t *testing.T) {
	c := sim.NewCluster(6)
	addrs := []address.Addr{
		address.New(1, 0), address.New(2, 0), address.New(3, 0), address.New(4, 0),
	}
	join := addrs[0]
	for _, a := range addrs {
		c.AddNode(cfgFor(a, join), events.NullSink{})
	}
	c.TickN(6)

	na, _ := c.Node(addrs[0])
	for i := 0; i < 30; i++ {
		na.Coordinator().Create(keyAt(i), "v", c.Net)
		c.TickN(1)
	}
	c.TickN(5)

	c.Kill(addrs[3])
	c.TickN(config.DefaultTFail + 2)

	// Re-running ticks after the arc has already transferred must not
	// duplicate entries: every survivor's total key count should be
	// stable across an extra settle pass.
	counts := func() map[address.Addr]int {
		out := make(map[address.Addr]int)
		for _, a := range c.Live() {
			n, _ := c.Node(a)
			out[a] = n.Backend().Store().Len()
		}
		return out
	}
	before := counts()
	c.TickN(3)
	after := counts()
	for a, n := range before {
		if after[a] != n {
			t.Fatalf("node %v key count changed on a settled re-run: %d -> %d", a, n, after[a])
		}
	}
}

func keyAt(i int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return string(alphabet[i%26]) + string(alphabet[(i/26)%26])
}
