// Package config parses node tunables and the peer/seed list consumed
// by cmd/dkvnode, adapted from the teacher's own flat Config/Peer
// shape.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dkv/internal/address"
)

// Tunables per spec.md §6.
const (
	DefaultTFail             = 5
	DefaultTRemove           = 20
	DefaultReplicationFactor = 3
	DefaultRingSize          = 1 << 16
	DefaultTxTimeoutTicks    = 10
)

// minRecommendedRingSize is the spec.md §9 open-question recommendation
// ("implementers should make RING_SIZE at least 2^16").
const minRecommendedRingSize = 1 << 16

// WellKnownJoin is the well-known join coordinator address (id=1,
// port=0) named in spec.md §6.
var WellKnownJoin = address.New(1, 0)

// Peer is one entry of the peer/seed list: a node identity paired with
// the host:port it listens on.
type Peer struct {
	Addr address.Addr
	Host string
}

// Config holds one node's tunables and static peer table.
type Config struct {
	Self     address.Addr
	ListenOn string
	JoinAddr address.Addr
	Peers    []Peer

	TFail             int64
	TRemove           int64
	ReplicationFactor int
	RingSize          uint64
	TxTimeoutTicks    int64
}

// New builds a Config with spec.md §6's default tunables; callers
// override fields (via cobra flags in cmd/dkvnode) before use.
func New(self address.Addr, listenOn string) *Config {
	return &Config{
		Self:              self,
		ListenOn:          listenOn,
		JoinAddr:          WellKnownJoin,
		TFail:             DefaultTFail,
		TRemove:           DefaultTRemove,
		ReplicationFactor: DefaultReplicationFactor,
		RingSize:          DefaultRingSize,
		TxTimeoutTicks:    DefaultTxTimeoutTicks,
	}
}

// ParsePeers parses a comma-separated peer list in the format
// "id:port=host:port,id:port=host:port", e.g.
// "2:9002=10.0.0.2:9002,3:9003=10.0.0.3:9003".
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id:port=host:port)", part)
		}

		idPort := strings.TrimSpace(kv[0])
		host := strings.TrimSpace(kv[1])
		if idPort == "" || host == "" {
			return nil, fmt.Errorf("peer identity and host cannot be empty: %s", part)
		}

		addr, err := parseAddr(idPort)
		if err != nil {
			return nil, fmt.Errorf("invalid peer identity %q: %w", idPort, err)
		}

		peers = append(peers, Peer{Addr: addr, Host: host})
	}

	return peers, nil
}

func parseAddr(s string) (address.Addr, error) {
	idPort := strings.SplitN(s, ":", 2)
	if len(idPort) != 2 {
		return address.Addr{}, fmt.Errorf("expected id:port, got %q", s)
	}
	id, err := strconv.ParseInt(idPort[0], 10, 32)
	if err != nil {
		return address.Addr{}, fmt.Errorf("invalid id %q: %w", idPort[0], err)
	}
	port, err := strconv.ParseInt(idPort[1], 10, 16)
	if err != nil {
		return address.Addr{}, fmt.Errorf("invalid port %q: %w", idPort[1], err)
	}
	return address.New(int32(id), int16(port)), nil
}

// HostsByAddr builds the addr -> host:port table a
// transport.StaticResolver needs, from the configured peers.
func (c *Config) HostsByAddr() map[address.Addr]string {
	out := make(map[address.Addr]string, len(c.Peers))
	for _, p := range c.Peers {
		out[p.Addr] = p.Host
	}
	return out
}

// Validate logs a warning (not a hard failure, to keep small test
// clusters viable) when RingSize is below the spec.md §9 recommended
// floor of 2^16, since collision probability grows as cluster size
// approaches RingSize.
func (c *Config) Validate(log *zap.Logger) {
	if log == nil {
		return
	}
	if c.RingSize < minRecommendedRingSize {
		log.Warn("ring size below recommended floor",
			zap.Uint64("ring_size", c.RingSize),
			zap.Uint64("recommended_minimum", minRecommendedRingSize),
		)
	}
	if c.TRemove < c.TFail {
		log.Warn("TREMOVE configured below TFAIL",
			zap.Int64("tfail", c.TFail),
			zap.Int64("tremove", c.TRemove),
		)
	}
}
