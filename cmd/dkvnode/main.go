// Command dkvnode runs a single dkv cluster member: it binds a UDP
// substrate, joins the cluster named by --join-id/--join-port, and drives
// the node's tick loop on a fixed interval until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dkv/internal/address"
	"dkv/internal/config"
	"dkv/internal/events"
	"dkv/internal/node"
	"dkv/internal/transport"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		selfID    int32
		selfPort  int16
		listenOn  string
		joinID    int32
		joinPort  int16
		peersStr  string
		tick      time.Duration
		tfail     int64
		tremove   int64
		rf        int
		ringSize  uint64
		txTimeout int64
		debug     bool
	)

	cmd := &cobra.Command{
		Use:     "dkvnode",
		Short:   "Run a dkv cluster member",
		Version: "0.1.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			self := address.New(selfID, selfPort)
			cfg := config.New(self, listenOn)
			cfg.JoinAddr = address.New(joinID, joinPort)
			cfg.TFail = tfail
			cfg.TRemove = tremove
			cfg.ReplicationFactor = rf
			cfg.RingSize = ringSize
			cfg.TxTimeoutTicks = txTimeout

			peers, err := config.ParsePeers(peersStr)
			if err != nil {
				return err
			}
			cfg.Peers = peers
			cfg.Validate(log)

			resolver := transport.NewStaticResolver(cfg.HostsByAddr())
			sub, err := transport.ListenUDP(cfg.ListenOn, resolver)
			if err != nil {
				return err
			}
			defer sub.Close()

			sink := events.NewZapSink(log)
			n := node.New(cfg, sub, sink, int64(self.Hash()))
			n.Start()

			log.Info("node starting",
				zap.Stringer("self", self),
				zap.Stringer("join", cfg.JoinAddr),
				zap.String("listen", cfg.ListenOn),
			)

			return run(cmd.Context(), n, tick, log)
		},
	}

	flags := cmd.Flags()
	flags.Int32Var(&selfID, "id", 0, "this node's identity")
	flags.Int16Var(&selfPort, "port", 0, "this node's logical port")
	flags.StringVar(&listenOn, "listen", ":9000", "UDP address to bind")
	flags.Int32Var(&joinID, "join-id", config.WellKnownJoin.ID, "identity of the node to join through")
	flags.Int16Var(&joinPort, "join-port", config.WellKnownJoin.Port, "logical port of the node to join through")
	flags.StringVar(&peersStr, "peers", "", "comma-separated id:port=host:port peer table")
	flags.DurationVar(&tick, "tick", 100*time.Millisecond, "wall-clock interval between ticks")
	flags.Int64Var(&tfail, "tfail", config.DefaultTFail, "ticks of silence before a peer is marked failed")
	flags.Int64Var(&tremove, "tremove", config.DefaultTRemove, "ticks of silence before a failed peer is purged")
	flags.IntVar(&rf, "replication-factor", config.DefaultReplicationFactor, "number of replicas per key")
	flags.Uint64Var(&ringSize, "ring-size", config.DefaultRingSize, "consistent-hash ring size")
	flags.Int64Var(&txTimeout, "tx-timeout", config.DefaultTxTimeoutTicks, "ticks before an unfinished transaction times out")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

// run drives n's tick loop on a fixed wall-clock interval until ctx is
// canceled by an interrupt or termination signal.
func run(parent context.Context, n *node.Node, tick time.Duration, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("node shutting down")
			return nil
		case <-ticker.C:
			n.OnTick()
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
