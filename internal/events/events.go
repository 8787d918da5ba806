// Package events defines the observability sink consumed by membership
// and the DHT (spec.md §6): a write-only event stream carrying the fixed
// vocabulary NodeAdd, NodeRemove, CreateSuccess/Fail, ReadSuccess/Fail,
// UpdateSuccess/Fail, DeleteSuccess/Fail.
package events

import "dkv/internal/address"

// Kind identifies one event in the fixed vocabulary.
type Kind string

// Event vocabulary, per spec.md §6.
const (
	NodeAdd       Kind = "node_add"
	NodeRemove    Kind = "node_remove"
	CreateSuccess Kind = "create_success"
	CreateFail    Kind = "create_fail"
	ReadSuccess   Kind = "read_success"
	ReadFail      Kind = "read_fail"
	UpdateSuccess Kind = "update_success"
	UpdateFail    Kind = "update_fail"
	DeleteSuccess Kind = "delete_success"
	DeleteFail    Kind = "delete_fail"
)

// Event carries the fields named in spec.md §6: origin address, whether
// the origin was acting as coordinator, the transaction id (zero for
// membership events), the key, and an optional value (only meaningful
// for ReadSuccess).
type Event struct {
	Kind          Kind
	Origin        address.Addr
	IsCoordinator bool
	Transaction   uint32
	Key           string
	Value         string
	HasValue      bool
}

// Sink is the consumed observability interface. Implementations must not
// block the caller for long, since events are emitted from inside a
// node's tick.
type Sink interface {
	Emit(Event)
}

// NullSink discards every event. Useful as a default when no observer is
// wired.
type NullSink struct{}

// Emit implements Sink.
func (NullSink) Emit(Event) {}
