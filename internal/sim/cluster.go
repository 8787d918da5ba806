// Package sim provides a deterministic multi-node test harness: a
// manually-advanced tick loop running every node over a shared
// transport.SimNetwork, the "application harness" spec.md §1 treats as
// an external collaborator.
package sim

import (
	"sort"

	"dkv/internal/address"
	"dkv/internal/config"
	"dkv/internal/events"
	"dkv/internal/node"
	"dkv/internal/transport"
)

// Cluster drives a fixed or growing set of Node instances over one
// in-process SimNetwork, advancing them one tick at a time in a fixed,
// deterministic order.
type Cluster struct {
	Net   *transport.SimNetwork
	nodes map[address.Addr]*node.Node
	order []address.Addr
	seed  int64
}

// NewCluster creates an empty cluster over a fresh, lossless
// SimNetwork. Call SetDropRate on Net to simulate an unreliable
// substrate.
func NewCluster(seed int64) *Cluster {
	return &Cluster{
		Net:   transport.NewSimNetwork(seed),
		nodes: make(map[address.Addr]*node.Node),
		seed:  seed,
	}
}

// AddNode builds a Node bound to the cluster's shared network, starts
// it (sending a JOINREQ unless cfg.JoinAddr is the node's own
// address), and adds it to the tick rotation.
func (c *Cluster) AddNode(cfg *config.Config, sink events.Sink) *node.Node {
	c.seed++
	n := node.New(cfg, c.Net, sink, c.seed)
	n.Start()
	c.nodes[cfg.Self] = n
	c.order = append(c.order, cfg.Self)
	sort.Slice(c.order, func(i, j int) bool {
		if c.order[i].ID != c.order[j].ID {
			return c.order[i].ID < c.order[j].ID
		}
		return c.order[i].Port < c.order[j].Port
	})
	return n
}

// Node returns the node running at addr, if any.
func (c *Cluster) Node(addr address.Addr) (*node.Node, bool) {
	n, ok := c.nodes[addr]
	return n, ok
}

// Kill removes addr from the tick rotation entirely, simulating an
// abrupt process death: it stops ticking (so it stops sending
// heartbeats and gossip) and can no longer be looked up, matching
// spec.md §8 scenario 3 ("no further sends").
func (c *Cluster) Kill(addr address.Addr) {
	delete(c.nodes, addr)
	for i, a := range c.order {
		if a == addr {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Tick advances every live node by exactly one tick, in address order.
func (c *Cluster) Tick() {
	for _, a := range c.order {
		c.nodes[a].OnTick()
	}
}

// TickN advances the cluster by n ticks.
func (c *Cluster) TickN(n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

// Live returns every address currently in the tick rotation.
func (c *Cluster) Live() []address.Addr {
	out := make([]address.Addr, len(c.order))
	copy(out, c.order)
	return out
}
