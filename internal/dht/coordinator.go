package dht

import (
	"dkv/internal/address"
	"dkv/internal/codec"
	"dkv/internal/events"
	"dkv/internal/replication"
	"dkv/internal/ring"
	"dkv/internal/transport"
)

// pruneAfter bounds how long a finished transaction is kept around to
// absorb late duplicate responses (spec.md §9's "destroyed once
// finished" is honored eventually, not instantly, so the debug dupe
// counter still has somewhere to land).
const pruneAfter = 2

// Coordinator is the client-side role of spec.md §4.6: it generates
// transactions, multicasts requests to a key's natural nodes, tallies
// quorum, and times out unfinished transactions.
type Coordinator struct {
	self    address.Addr
	rf      int
	timeout int64
	sink    events.Sink

	ring    *ring.Ring
	pending map[uint32]*Transaction
	nextTID uint32
	clock   int64
}

// NewCoordinator constructs a Coordinator for self.
func NewCoordinator(self address.Addr, rf int, timeoutTicks int64, sink events.Sink) *Coordinator {
	if sink == nil {
		sink = events.NullSink{}
	}
	return &Coordinator{
		self:    self,
		rf:      rf,
		timeout: timeoutTicks,
		sink:    sink,
		pending: make(map[uint32]*Transaction),
	}
}

// SetRing installs the ring snapshot used to resolve a key's natural
// nodes for the next call. Refreshed once per tick by the node driver.
func (c *Coordinator) SetRing(r *ring.Ring) { c.ring = r }

// Transaction returns the tracked transaction record for tid, if any,
// for inspection by callers (tests, the tick driver).
func (c *Coordinator) Transaction(tid uint32) (*Transaction, bool) {
	tx, ok := c.pending[tid]
	return tx, ok
}

// PendingCount returns the number of transactions not yet finished.
func (c *Coordinator) PendingCount() int {
	n := 0
	for _, tx := range c.pending {
		if !tx.Finished {
			n++
		}
	}
	return n
}

func (c *Coordinator) nextTransactionID() uint32 {
	c.nextTID++
	return c.nextTID
}

// Create begins a CREATE transaction, multicasting to key's natural
// nodes, and returns the allocated transaction id.
func (c *Coordinator) Create(key, value string, sub transport.Substrate) uint32 {
	return c.begin(OpCreate, codec.Create, key, value, true, sub)
}

// Read begins a READ transaction.
func (c *Coordinator) Read(key string, sub transport.Substrate) uint32 {
	return c.begin(OpRead, codec.Read, key, "", false, sub)
}

// Update begins an UPDATE transaction.
func (c *Coordinator) Update(key, value string, sub transport.Substrate) uint32 {
	return c.begin(OpUpdate, codec.Update, key, value, true, sub)
}

// Delete begins a DELETE transaction.
func (c *Coordinator) Delete(key string, sub transport.Substrate) uint32 {
	return c.begin(OpDelete, codec.Delete, key, "", false, sub)
}

func (c *Coordinator) begin(op DHTOp, wireType codec.DHTMsgType, key, value string, hasValue bool, sub transport.Substrate) uint32 {
	tid := c.nextTransactionID()
	var natural []address.Addr
	if c.ring != nil {
		natural = replication.NaturalNodes(c.ring, key, c.rf)
	}

	tx := &Transaction{TID: tid, Op: op, Key: key, Value: value, TimeLeft: c.timeout}
	for _, a := range natural {
		tx.endpoints = append(tx.endpoints, &endpoint{addr: a})
	}
	c.pending[tid] = tx

	msg := codec.Message{
		Type:        wireType,
		Transaction: tid,
		SrcID:       c.self.ID,
		SrcPort:     c.self.Port,
		HasKey:      true,
		Key:         key,
	}
	if hasValue {
		msg.HasValue = true
		msg.Value = value
	}
	buf := codec.Encode(msg)
	for _, a := range natural {
		sub.Send(c.self, a, buf)
	}
	return tid
}

// OnResponse handles one inbound DHT response, per spec.md §4.6's
// tallying rules. Responses for unknown or already-finished
// transactions are dropped (counted as a dupe when the transaction is
// still tracked).
func (c *Coordinator) OnResponse(msg codec.Message) {
	tx, ok := c.pending[msg.Transaction]
	if !ok {
		return
	}
	if tx.Finished {
		tx.Dupes++
		return
	}
	src := address.New(msg.SrcID, msg.SrcPort)
	ep := tx.endpointFor(src)
	if ep == nil || ep.responded {
		tx.Dupes++
		return
	}

	ep.responded = true
	success := msg.HasStatus && msg.Status == codec.StatusOK
	ep.success = success
	if success {
		tx.successCount++
		if tx.Op == OpRead && tx.ReadValue == "" && msg.HasValue {
			tx.ReadValue = msg.Value
		}
	} else {
		tx.failCount++
	}

	c.evaluate(tx)
}

// evaluate applies the per-op decision rules from spec.md §4.6's
// tallying table.
func (c *Coordinator) evaluate(tx *Transaction) {
	n := len(tx.endpoints)
	if n == 0 {
		return
	}
	quorum := n/2 + 1

	switch tx.Op {
	case OpCreate, OpDelete:
		if tx.successCount == n {
			c.finish(tx, true)
		} else if tx.respondedCount() == n {
			c.finish(tx, false)
		}
	case OpRead:
		if tx.successCount >= quorum {
			c.finish(tx, true)
		} else if tx.failCount >= quorum {
			c.finish(tx, false)
		}
	case OpUpdate:
		if tx.successCount >= quorum {
			c.finish(tx, true)
		}
		// Failure is timeout-only, per spec.md §4.6.
	}
}

func (c *Coordinator) finish(tx *Transaction, success bool) {
	tx.Finished = true
	tx.Success = success
	tx.finishedAt = c.clock
	c.sink.Emit(events.Event{
		Kind:          successKindFor(tx.Op, success),
		Origin:        c.self,
		IsCoordinator: true,
		Transaction:   tx.TID,
		Key:           tx.Key,
		Value:         tx.ReadValue,
		HasValue:      tx.Op == OpRead && success,
	})
}

func successKindFor(op DHTOp, success bool) events.Kind {
	switch op {
	case OpCreate:
		if success {
			return events.CreateSuccess
		}
		return events.CreateFail
	case OpRead:
		if success {
			return events.ReadSuccess
		}
		return events.ReadFail
	case OpUpdate:
		if success {
			return events.UpdateSuccess
		}
		return events.UpdateFail
	default:
		if success {
			return events.DeleteSuccess
		}
		return events.DeleteFail
	}
}

// OnTick decrements time_left on every unfinished transaction,
// finishing (as a failure) any that reach zero, and prunes
// long-finished transactions to bound memory.
func (c *Coordinator) OnTick() {
	c.clock++
	for tid, tx := range c.pending {
		if tx.Finished {
			if c.clock-tx.finishedAt > pruneAfter {
				delete(c.pending, tid)
			}
			continue
		}
		tx.TimeLeft--
		if tx.TimeLeft <= 0 {
			c.finish(tx, false)
		}
	}
}
