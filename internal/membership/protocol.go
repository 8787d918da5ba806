package membership

import (
	"dkv/internal/address"
	"dkv/internal/codec"
	"dkv/internal/events"
	"dkv/internal/transport"
)

// Protocol is the membership state machine of spec.md §4.1: it owns a
// Table, a Detector, and a Disseminator, and exposes the three
// operations an external tick driver calls: Start, OnTick, OnMessage.
type Protocol struct {
	self          address.Addr
	selfHeartbeat int64
	clock         int64
	inGroup       bool

	table        *Table
	detector     *Detector
	disseminator *Disseminator
	sink         events.Sink
}

// NewProtocol constructs a Protocol for self with the given failure
// detector tunables. sink may be events.NullSink{} if observability is
// not needed.
func NewProtocol(self address.Addr, tfail, tremove int64, seed int64, sink events.Sink) *Protocol {
	if sink == nil {
		sink = events.NullSink{}
	}
	return &Protocol{
		self:         self,
		table:        New(self),
		detector:     NewDetector(tfail, tremove),
		disseminator: NewDisseminator(seed),
		sink:         sink,
	}
}

// Self returns the node's own address.
func (p *Protocol) Self() address.Addr { return p.self }

// InGroup reports whether this node considers itself joined.
func (p *Protocol) InGroup() bool { return p.inGroup }

// Table exposes the membership table for read-only consumption by the
// ring and DHT layers.
func (p *Protocol) Table() *Table { return p.table }

// Clock returns the local logical clock.
func (p *Protocol) Clock() int64 { return p.clock }

// Start implements spec.md §4.1's start(join_addr): joining oneself is
// a no-op that declares in-group immediately; otherwise a JOINREQ is
// sent to joinAddr.
func (p *Protocol) Start(joinAddr address.Addr, sub transport.Substrate) {
	if joinAddr == p.self {
		p.inGroup = true
		return
	}
	buf := codec.EncodeJoinRequest(codec.JoinRequest{
		ID:        p.self.ID,
		Port:      p.self.Port,
		Heartbeat: p.selfHeartbeat,
	})
	sub.Send(p.self, joinAddr, buf)
}

// OnTick implements spec.md §4.1's on_tick(): advance the local clock
// and heartbeat, then run the failure detector followed by gossip.
func (p *Protocol) OnTick(sub transport.Substrate) {
	p.clock++
	p.selfHeartbeat++
	p.runDetector()
	p.runGossip(sub)
}

func (p *Protocol) runDetector() {
	_, removed := p.detector.Run(p.table, p.clock)
	for range removed {
		p.sink.Emit(events.Event{Kind: events.NodeRemove, Origin: p.self})
	}
}

func (p *Protocol) runGossip(sub transport.Substrate) {
	members := p.table.MemberList()
	targets := p.disseminator.PickSubset(members)
	if len(targets) == 0 {
		return
	}

	entries := make([]codec.MemberData, 0, len(members))
	for _, a := range members {
		hb, ok := p.table.Heartbeat(a)
		if !ok {
			continue
		}
		entries = append(entries, codec.MemberData{ID: a.ID, Port: a.Port, Heartbeat: hb})
	}
	addReq := codec.EncodeAddMembersRequest(codec.AddMembersRequest{
		ID:        p.self.ID,
		Port:      p.self.Port,
		Heartbeat: p.selfHeartbeat,
		Entries:   entries,
	})
	hbMsg := codec.EncodeHeartbeat(codec.HeartbeatMsg{
		ID:        p.self.ID,
		Port:      p.self.Port,
		Heartbeat: p.selfHeartbeat,
	})

	for _, dst := range targets {
		sub.Send(p.self, dst, addReq)
	}
	// Independently resample for the heartbeat push, per spec.md §4.3.
	hbTargets := p.disseminator.PickSubset(members)
	for _, dst := range hbTargets {
		sub.Send(p.self, dst, hbMsg)
	}
}

// OnMessage implements spec.md §4.1's on_message(bytes): classify by
// msg_type and dispatch. Malformed or unknown frames are dropped
// silently per spec.md §7.
func (p *Protocol) OnMessage(buf []byte, sub transport.Substrate) {
	mtype, err := codec.PeekType(buf)
	if err != nil {
		return
	}
	switch mtype {
	case codec.JoinReq:
		p.handleJoinReq(buf, sub)
	case codec.JoinRsp:
		p.handleJoinRsp(buf)
	case codec.AddMembersReq:
		p.handleAddMembers(buf)
	case codec.Heartbeat:
		p.handleHeartbeat(buf)
	default:
		return
	}
}

func (p *Protocol) handleJoinReq(buf []byte, sub transport.Substrate) {
	m, err := codec.DecodeJoinRequest(buf)
	if err != nil {
		return
	}
	sender := codec.Addr(m.ID, m.Port)
	if p.table.Incorporate(sender, m.Heartbeat, p.clock) {
		p.sink.Emit(events.Event{Kind: events.NodeAdd, Origin: sender})
	}

	members := p.table.MemberList()
	entries := make([]codec.MemberData, 0, len(members))
	for _, a := range members {
		if a == sender {
			continue
		}
		hb, ok := p.table.Heartbeat(a)
		if !ok {
			continue
		}
		entries = append(entries, codec.MemberData{ID: a.ID, Port: a.Port, Heartbeat: hb})
	}
	rsp := codec.EncodeJoinResponse(codec.JoinResponse{
		ID:        p.self.ID,
		Port:      p.self.Port,
		Heartbeat: p.selfHeartbeat,
		Entries:   entries,
	})
	sub.Send(p.self, sender, rsp)
}

func (p *Protocol) handleJoinRsp(buf []byte) {
	m, err := codec.DecodeJoinResponse(buf)
	if err != nil {
		return
	}
	sender := codec.Addr(m.ID, m.Port)
	if p.table.Incorporate(sender, m.Heartbeat, p.clock) {
		p.sink.Emit(events.Event{Kind: events.NodeAdd, Origin: sender})
	}
	for _, e := range m.Entries {
		a := codec.Addr(e.ID, e.Port)
		if p.table.Incorporate(a, e.Heartbeat, p.clock) {
			p.sink.Emit(events.Event{Kind: events.NodeAdd, Origin: a})
		}
	}
	p.inGroup = true
}

func (p *Protocol) handleAddMembers(buf []byte) {
	m, err := codec.DecodeAddMembersRequest(buf)
	if err != nil {
		return
	}
	sender := codec.Addr(m.ID, m.Port)
	if p.table.Incorporate(sender, m.Heartbeat, p.clock) {
		p.sink.Emit(events.Event{Kind: events.NodeAdd, Origin: sender})
	}
	for _, e := range m.Entries {
		a := codec.Addr(e.ID, e.Port)
		if p.table.Incorporate(a, e.Heartbeat, p.clock) {
			p.sink.Emit(events.Event{Kind: events.NodeAdd, Origin: a})
		}
	}
}

func (p *Protocol) handleHeartbeat(buf []byte) {
	m, err := codec.DecodeHeartbeat(buf)
	if err != nil {
		return
	}
	sender := codec.Addr(m.ID, m.Port)
	p.table.OnHeartbeat(sender, m.Heartbeat, p.clock)
}
