// Package node implements the tick driver of spec.md §2/§5: the single
// periodic entry point that drains inbound datagrams, runs membership
// tasks, and runs the DHT cluster update, in that order, with no
// blocking inside a tick.
package node

import (
	"dkv/internal/address"
	"dkv/internal/codec"
	"dkv/internal/config"
	"dkv/internal/dht"
	"dkv/internal/events"
	"dkv/internal/membership"
	"dkv/internal/ring"
	"dkv/internal/transport"
)

// Node wires membership, the ring partitioner, and the DHT backend and
// coordinator behind one substrate connection, exactly the composition
// named in spec.md §2's component table.
type Node struct {
	self address.Addr
	cfg  *config.Config
	sub  transport.Substrate

	mem     *membership.Protocol
	backend *dht.Backend
	coord   *dht.Coordinator

	ring *ring.Ring
}

// New constructs a Node from cfg, bound to sub for all network I/O and
// sink for observability. A fresh random seed for gossip sampling
// should be supplied by the caller (derived from the node's own
// identity is fine for production; tests pass a fixed seed).
func New(cfg *config.Config, sub transport.Substrate, sink events.Sink, gossipSeed int64) *Node {
	if sink == nil {
		sink = events.NullSink{}
	}
	return &Node{
		self:    cfg.Self,
		cfg:     cfg,
		sub:     sub,
		mem:     membership.NewProtocol(cfg.Self, cfg.TFail, cfg.TRemove, gossipSeed, sink),
		backend: dht.NewBackend(cfg.Self, cfg.ReplicationFactor, cfg.RingSize, sink),
		coord:   dht.NewCoordinator(cfg.Self, cfg.ReplicationFactor, cfg.TxTimeoutTicks, sink),
	}
}

// Start joins the cluster via cfg.JoinAddr.
func (n *Node) Start() {
	n.mem.Start(n.cfg.JoinAddr, n.sub)
}

// Membership exposes the membership protocol for inspection (tests,
// the simulation harness).
func (n *Node) Membership() *membership.Protocol { return n.mem }

// Backend exposes the DHT backend for inspection.
func (n *Node) Backend() *dht.Backend { return n.backend }

// Coordinator exposes the DHT coordinator, the client API surface
// (Create/Read/Update/Delete).
func (n *Node) Coordinator() *dht.Coordinator { return n.coord }

// OnTick runs one full tick: drain inbound and dispatch every queued
// datagram, then membership tasks, then the DHT cluster update. No
// step blocks; everything operates on whatever is presently queued.
func (n *Node) OnTick() {
	for _, buf := range n.sub.RecvDrain(n.self) {
		n.dispatch(buf)
	}

	n.mem.OnTick(n.sub)

	n.ring = ring.Build(n.activeMembers(), n.cfg.RingSize)
	n.coord.SetRing(n.ring)
	n.backend.OnClusterUpdate(n.ring, n.sub)
	n.coord.OnTick()
}

func (n *Node) activeMembers() []address.Addr {
	active := n.mem.Table().ActiveAddrs()
	return append(active, n.self)
}

// dispatch classifies one inbound datagram and routes it to the
// membership protocol, the DHT backend, or the DHT coordinator.
// Malformed or unrecognized frames are dropped silently, per spec.md
// §7.
func (n *Node) dispatch(buf []byte) {
	if codec.IsDHTFrame(buf) {
		msg, err := codec.Decode(buf)
		if err != nil {
			return
		}
		if isDHTResponse(msg.Type) {
			n.coord.OnResponse(msg)
		} else {
			n.backend.HandleRequest(msg, n.sub)
		}
		return
	}
	n.mem.OnMessage(buf, n.sub)
}

func isDHTResponse(t codec.DHTMsgType) bool {
	switch t {
	case codec.CreateRsp, codec.ReadRsp, codec.UpdateRsp, codec.DeleteRsp:
		return true
	default:
		return false
	}
}
