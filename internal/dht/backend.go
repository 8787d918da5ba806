// Package dht implements the replica-side backend and client-side
// coordinator of spec.md §4.5–§4.6: quorum-coordinated CREATE/READ/
// UPDATE/DELETE over the consistent-hash ring, plus anti-entropy
// SYNC_BEGIN on ring change.
package dht

import (
	"dkv/internal/address"
	"dkv/internal/codec"
	"dkv/internal/events"
	"dkv/internal/replication"
	"dkv/internal/ring"
	"dkv/internal/storage"
	"dkv/internal/transport"
)

// Backend owns the local shard and answers requests from coordinators,
// per spec.md §4.5.
type Backend struct {
	self     address.Addr
	rf       int
	ringSize uint64
	store    *storage.HashTable
	sink     events.Sink

	haveSuccessor bool
	lastSuccessor address.Addr
}

// NewBackend constructs a Backend for self with an empty shard.
func NewBackend(self address.Addr, rf int, ringSize uint64, sink events.Sink) *Backend {
	if sink == nil {
		sink = events.NullSink{}
	}
	return &Backend{self: self, rf: rf, ringSize: ringSize, store: storage.New(), sink: sink}
}

// Store exposes the local shard for inspection (tests, anti-entropy).
func (b *Backend) Store() *storage.HashTable { return b.store }

// HandleRequest dispatches one inbound DHT request to the matching CRUD
// handler, or merges a SYNC_BEGIN batch. Response message types and
// unrecognized types are ignored: a Backend never answers a response.
func (b *Backend) HandleRequest(msg codec.Message, sub transport.Substrate) {
	switch msg.Type {
	case codec.Create:
		b.handleCreate(msg, sub)
	case codec.Read:
		b.handleRead(msg, sub)
	case codec.Update:
		b.handleUpdate(msg, sub)
	case codec.Delete:
		b.handleDelete(msg, sub)
	case codec.SyncBegin:
		b.handleSync(msg)
	default:
		return
	}
}

func (b *Backend) emit(kind events.Kind, msg codec.Message) {
	b.sink.Emit(events.Event{Kind: kind, Origin: b.self, IsCoordinator: false, Transaction: msg.Transaction, Key: msg.Key})
}

func (b *Backend) handleCreate(msg codec.Message, sub transport.Substrate) {
	status := codec.StatusOK
	kind := events.CreateSuccess
	if err := b.store.Create(msg.Key, msg.Value); err != nil {
		status = codec.StatusFail
		kind = events.CreateFail
	}
	b.emit(kind, msg)
	rsp := codec.Message{Type: codec.CreateRsp, Transaction: msg.Transaction, SrcID: b.self.ID, SrcPort: b.self.Port, HasStatus: true, Status: status}
	sub.Send(b.self, address.New(msg.SrcID, msg.SrcPort), codec.Encode(rsp))
}

func (b *Backend) handleRead(msg codec.Message, sub transport.Substrate) {
	rsp := codec.Message{Type: codec.ReadRsp, Transaction: msg.Transaction, SrcID: b.self.ID, SrcPort: b.self.Port, HasStatus: true}
	value, err := b.store.Read(msg.Key)
	if err != nil {
		rsp.Status = codec.StatusFail
		b.emit(events.ReadFail, msg)
	} else {
		rsp.Status = codec.StatusOK
		rsp.HasKey = true
		rsp.Key = msg.Key
		rsp.HasValue = true
		rsp.Value = value
		b.emit(events.ReadSuccess, msg)
	}
	sub.Send(b.self, address.New(msg.SrcID, msg.SrcPort), codec.Encode(rsp))
}

func (b *Backend) handleUpdate(msg codec.Message, sub transport.Substrate) {
	status := codec.StatusOK
	kind := events.UpdateSuccess
	if err := b.store.Update(msg.Key, msg.Value); err != nil {
		status = codec.StatusFail
		kind = events.UpdateFail
	}
	b.emit(kind, msg)
	rsp := codec.Message{Type: codec.UpdateRsp, Transaction: msg.Transaction, SrcID: b.self.ID, SrcPort: b.self.Port, HasStatus: true, Status: status}
	sub.Send(b.self, address.New(msg.SrcID, msg.SrcPort), codec.Encode(rsp))
}

func (b *Backend) handleDelete(msg codec.Message, sub transport.Substrate) {
	status := codec.StatusOK
	kind := events.DeleteSuccess
	if err := b.store.Delete(msg.Key); err != nil {
		status = codec.StatusFail
		kind = events.DeleteFail
	}
	b.emit(kind, msg)
	rsp := codec.Message{Type: codec.DeleteRsp, Transaction: msg.Transaction, SrcID: b.self.ID, SrcPort: b.self.Port, HasStatus: true, Status: status}
	sub.Send(b.self, address.New(msg.SrcID, msg.SrcPort), codec.Encode(rsp))
}

// handleSync merges a SYNC_BEGIN batch: insert-if-absent, never
// overwrite, so re-applying the same batch is idempotent (spec.md §8
// invariant 5).
func (b *Backend) handleSync(msg codec.Message) {
	if !msg.HasReplica {
		return
	}
	pairs := make(map[string]string, len(msg.Replica))
	for _, kv := range msg.Replica {
		pairs[kv.Key] = kv.Value
	}
	b.store.MergeSync(pairs)
}

// OnClusterUpdate implements spec.md §4.5's anti-entropy trigger: if the
// immediate successor changed since the last call, push the keys whose
// ring position now belongs to each successor in the replica-set window.
func (b *Backend) OnClusterUpdate(r *ring.Ring, sub transport.Substrate) {
	_, idx, ok := r.SlotFor(b.self)
	if !ok {
		return
	}
	n := r.Len()
	if n <= 1 {
		b.haveSuccessor = false
		return
	}
	successor := r.Slots()[(idx+1)%n].Addr
	if b.haveSuccessor && successor == b.lastSuccessor {
		return
	}
	b.haveSuccessor = true
	b.lastSuccessor = successor

	window, selfIdx := replication.ReplicaSet(r, b.self, b.rf)
	if selfIdx < 0 {
		return
	}
	snapshot := b.store.Snapshot()

	for i := selfIdx + 1; i < len(window); i++ {
		succ := window[i]
		succSlot, succIdx, ok := r.SlotFor(succ)
		if !ok {
			continue
		}
		predIdx := (succIdx - 1 + n) % n
		predEnd := r.Slots()[predIdx].RangeEnd

		var batch []codec.KV
		for k, v := range snapshot {
			pos := address.PosKey(k, b.ringSize)
			if ring.InArc(predEnd, succSlot.RangeEnd, pos) {
				batch = append(batch, codec.KV{Key: k, Value: v})
			}
		}
		if len(batch) == 0 {
			continue
		}
		msg := codec.Message{
			Type:       codec.SyncBegin,
			SrcID:      b.self.ID,
			SrcPort:    b.self.Port,
			HasReplica: true,
			Replica:    batch,
		}
		sub.Send(b.self, succ, codec.Encode(msg))
	}
}
