package transport

import (
	"math/rand"
	"sync"

	"dkv/internal/address"
)

// SimNetwork is an in-process, best-effort datagram substrate for
// deterministic tests: every node's inbound queue is an in-memory
// MessageQueue, and Send can be configured to drop a fraction of
// datagrams, simulating the loss spec.md §2 requires callers to
// tolerate.
type SimNetwork struct {
	mu       sync.Mutex
	queues   map[address.Addr]*MessageQueue
	dropRate float64
	rng      *rand.Rand
}

// NewSimNetwork creates a lossless SimNetwork. Use SetDropRate to
// introduce loss.
func NewSimNetwork(seed int64) *SimNetwork {
	return &SimNetwork{
		queues: make(map[address.Addr]*MessageQueue),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SetDropRate configures the fraction of datagrams (0.0-1.0) that Send
// silently discards.
func (n *SimNetwork) SetDropRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRate = rate
}

func (n *SimNetwork) queueFor(dst address.Addr) *MessageQueue {
	n.mu.Lock()
	defer n.mu.Unlock()
	q, ok := n.queues[dst]
	if !ok {
		q = NewMessageQueue()
		n.queues[dst] = q
	}
	return q
}

// Send copies buf into dst's inbound queue, unless the configured drop
// rate discards it. src is unused beyond being part of the Substrate
// contract: SimNetwork does not model return routing.
func (n *SimNetwork) Send(src, dst address.Addr, buf []byte) error {
	n.mu.Lock()
	drop := n.dropRate > 0 && n.rng.Float64() < n.dropRate
	n.mu.Unlock()
	if drop {
		return nil
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	n.queueFor(dst).Push(cp)
	return nil
}

// RecvDrain implements Substrate.
func (n *SimNetwork) RecvDrain(dst address.Addr) [][]byte {
	return n.queueFor(dst).DrainAll()
}
