package sim

import (
	"testing"

	"dkv/internal/address"
	"dkv/internal/config"
	"dkv/internal/events"
)

func joinCfg(self, join address.Addr) *config.Config {
	cfg := config.New(self, "")
	cfg.JoinAddr = join
	return cfg
}

func TestClusterFormsOverTicks(t *testing.T) {
	c := NewCluster(1)
	a := address.New(1, 0)
	b := address.New(2, 0)

	c.AddNode(joinCfg(a, a), events.NullSink{})
	c.AddNode(joinCfg(b, a), events.NullSink{})

	c.TickN(5)

	na, _ := c.Node(a)
	nb, _ := c.Node(b)
	if !nb.Membership().InGroup() {
		t.Fatalf("expected b in-group after 5 ticks")
	}
	if !na.Membership().Table().IsActive(b) {
		t.Fatalf("expected a to see b active")
	}
}

func TestKillRemovesFromRotation(t *testing.T) {
	c := NewCluster(2)
	a := address.New(1, 0)
	c.AddNode(joinCfg(a, a), events.NullSink{})
	if len(c.Live()) != 1 {
		t.Fatalf("expected 1 live node")
	}
	c.Kill(a)
	if len(c.Live()) != 0 {
		t.Fatalf("expected 0 live nodes after kill")
	}
	if _, ok := c.Node(a); ok {
		t.Fatalf("killed node must not be found")
	}
}
