package membership

import (
	"math"
	"math/rand"

	"dkv/internal/address"
)

// Disseminator implements the gossip fan-out of spec.md §4.3: each
// tick, independent random subsets of memberList receive a membership
// push and a heartbeat push.
type Disseminator struct {
	rng *rand.Rand
}

// NewDisseminator builds a Disseminator seeded with seed. Production
// callers should derive seed from crypto/rand or the node's own
// identity; tests use a fixed seed for determinism.
func NewDisseminator(seed int64) *Disseminator {
	return &Disseminator{rng: rand.New(rand.NewSource(seed))}
}

// sampleSize computes k = floor(log2(n)) + 2, clamped to [0, n], the
// "reference" fan-out width named in spec.md §4.3.
func sampleSize(n int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Floor(math.Log2(float64(n)))) + 2
	if k > n {
		k = n
	}
	if k < 0 {
		k = 0
	}
	return k
}

// PickSubset draws a uniform-without-replacement sample of size
// sampleSize(len(members)) from members. The sender never includes
// itself, since members is memberList, which never holds self.
func (d *Disseminator) PickSubset(members []address.Addr) []address.Addr {
	k := sampleSize(len(members))
	if k == 0 {
		return nil
	}
	pool := make([]address.Addr, len(members))
	copy(pool, members)
	d.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:k]
}
