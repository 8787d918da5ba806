// Package replication is a thin facade over internal/ring so the DHT
// layer never needs to import ring internals directly.
package replication

import (
	"dkv/internal/address"
	"dkv/internal/ring"
)

// NaturalNodes returns the RF natural nodes for key on the given ring.
func NaturalNodes(r *ring.Ring, key string, rf int) []address.Addr {
	return r.NaturalNodes(key, rf)
}

// ReplicaSet returns the centered replica window for self on the given
// ring, and self's index within it.
func ReplicaSet(r *ring.Ring, self address.Addr, rf int) ([]address.Addr, int) {
	return r.ReplicaSet(self, rf)
}
