// Package storage provides the local key-value shard owned by a DHT
// backend: a plain string-to-string map with CRUD semantics and an
// idempotent insert-if-absent merge for anti-entropy SYNC_BEGIN, per
// spec.md §3/§4.5/§4.7. There is no concurrent-writer concern (a node's
// tick is single-threaded), so the store holds no lock of its own.
package storage

import "errors"

// ErrKeyExists is returned by Create when the key is already present.
var ErrKeyExists = errors.New("storage: key already exists")

// ErrKeyAbsent is returned by Read/Update/Delete when the key is not
// present.
var ErrKeyAbsent = errors.New("storage: key absent")

// HashTable is the backend's local shard.
type HashTable struct {
	data map[string]string
}

// New creates an empty shard.
func New() *HashTable {
	return &HashTable{data: make(map[string]string)}
}

// Create inserts key if absent. Create is not idempotent: inserting an
// already-present key fails with ErrKeyExists.
func (h *HashTable) Create(key, value string) error {
	if _, ok := h.data[key]; ok {
		return ErrKeyExists
	}
	h.data[key] = value
	return nil
}

// Read returns the value for key, or ErrKeyAbsent if not present.
func (h *HashTable) Read(key string) (string, error) {
	v, ok := h.data[key]
	if !ok {
		return "", ErrKeyAbsent
	}
	return v, nil
}

// Update overwrites key's value. There is no upsert: a missing key fails
// with ErrKeyAbsent.
func (h *HashTable) Update(key, value string) error {
	if _, ok := h.data[key]; !ok {
		return ErrKeyAbsent
	}
	h.data[key] = value
	return nil
}

// Delete removes key, or fails with ErrKeyAbsent if not present.
func (h *HashTable) Delete(key string) error {
	if _, ok := h.data[key]; !ok {
		return ErrKeyAbsent
	}
	delete(h.data, key)
	return nil
}

// MergeSync applies a SYNC_BEGIN batch: insert-if-absent, never
// overwrite. Applying the same batch twice is a no-op the second time,
// which is exactly the idempotence anti-entropy requires (spec.md §4.5,
// §8 invariant 5).
func (h *HashTable) MergeSync(pairs map[string]string) {
	for k, v := range pairs {
		if _, ok := h.data[k]; !ok {
			h.data[k] = v
		}
	}
}

// Snapshot returns a copy of every (key, value) pair currently held.
// Used by anti-entropy to select keys whose ring position falls in a
// transferred arc.
func (h *HashTable) Snapshot() map[string]string {
	out := make(map[string]string, len(h.data))
	for k, v := range h.data {
		out[k] = v
	}
	return out
}

// Len returns the number of keys held locally.
func (h *HashTable) Len() int {
	return len(h.data)
}
