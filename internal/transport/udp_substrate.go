package transport

import (
	"fmt"
	"net"
	"sync"

	"dkv/internal/address"
)

// Resolver maps a logical node address onto the real UDP endpoint it
// listens on. Grounded on the teacher's ClientManager, which resolved a
// peer id to a dial target lazily and cached the result.
type Resolver interface {
	Resolve(a address.Addr) (*net.UDPAddr, error)
}

// StaticResolver is a Resolver backed by a fixed address.Addr -> host:port
// table, built once at startup from configuration.
type StaticResolver struct {
	mu    sync.RWMutex
	hosts map[address.Addr]string
}

// NewStaticResolver builds a StaticResolver from an addr -> host map.
func NewStaticResolver(hosts map[address.Addr]string) *StaticResolver {
	r := &StaticResolver{hosts: make(map[address.Addr]string, len(hosts))}
	for a, h := range hosts {
		r.hosts[a] = h
	}
	return r
}

// Set records (or replaces) the host for a, e.g. after learning it from
// a join response.
func (r *StaticResolver) Set(a address.Addr, host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[a] = host
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(a address.Addr) (*net.UDPAddr, error) {
	r.mu.RLock()
	host, ok := r.hosts[a]
	r.mu.RUnlock()
	if !ok {
		host = fmt.Sprintf("127.0.0.1:%d", a.Port)
	}
	return net.ResolveUDPAddr("udp", host)
}

// UDPSubstrate is the real-network Substrate implementation: one bound
// net.PacketConn per node, with a background goroutine copying inbound
// datagrams into a local MessageQueue so that RecvDrain (called from a
// node's tick) never blocks on the socket.
type UDPSubstrate struct {
	conn   *net.UDPConn
	res    Resolver
	inbox  *MessageQueue
	done   chan struct{}
	closed sync.Once
}

// ListenUDP binds a UDP socket on laddr and starts draining it into an
// inbound MessageQueue.
func ListenUDP(laddr string, res Resolver) (*UDPSubstrate, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", laddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", laddr, err)
	}
	s := &UDPSubstrate{
		conn:  conn,
		res:   res,
		inbox: NewMessageQueue(),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *UDPSubstrate) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			continue
		}
		if n == 0 {
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		s.inbox.Push(cp)
	}
}

// Send resolves dst to a UDP endpoint and writes buf as one datagram.
// src is unused: the reply path, if any, is the UDP source address, not
// the logical node identity.
func (s *UDPSubstrate) Send(src, dst address.Addr, buf []byte) error {
	raddr, err := s.res.Resolve(dst)
	if err != nil {
		return fmt.Errorf("transport: resolve %s: %w", dst, err)
	}
	_, err = s.conn.WriteToUDP(buf, raddr)
	return err
}

// RecvDrain implements Substrate. dst is unused: a UDPSubstrate only
// ever serves the single node it was bound for.
func (s *UDPSubstrate) RecvDrain(dst address.Addr) [][]byte {
	return s.inbox.DrainAll()
}

// Close stops the read loop and releases the socket.
func (s *UDPSubstrate) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
