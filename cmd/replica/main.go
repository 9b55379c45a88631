// Command replica runs one BFT2F replica process (§6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruvnet/alienator/internal/api/admin"
	"github.com/ruvnet/alienator/internal/bft"
	"github.com/ruvnet/alienator/internal/bft/faulty"
	"github.com/ruvnet/alienator/internal/bft/keystore"
	"github.com/ruvnet/alienator/internal/config"
	bfterrors "github.com/ruvnet/alienator/internal/errors"
	"github.com/ruvnet/alienator/internal/storage"
	"github.com/ruvnet/alienator/internal/transport"
	"github.com/ruvnet/alienator/pkg/metrics"
)

var (
	flagID         uint32
	flagBind       string
	flagPeers      string
	flagClients    string
	flagF          int
	flagFaulty     bool
	flagTransport  string
	flagNATSURL    string
	flagAdminBind  string
	flagAdminToken string
	flagPersist    string
	flagRedisAddr  string
)

var rootCmd = &cobra.Command{
	Use:   "replica",
	Short: "Run one BFT2F replica",
	RunE:  runReplica,
}

func init() {
	rootCmd.Flags().Uint32Var(&flagID, "id", 0, "this replica's numeric id")
	rootCmd.Flags().StringVar(&flagBind, "bind", "", "host:port to bind the protocol socket")
	rootCmd.Flags().StringVar(&flagPeers, "peers", "", "comma-separated host:port list, ordered by replica id, N=3f+1 entries")
	rootCmd.Flags().StringVar(&flagClients, "clients", "", "comma-separated host:port list, ordered by client id")
	rootCmd.Flags().IntVar(&flagF, "f", 1, "tolerated number of faulty replicas")
	rootCmd.Flags().BoolVar(&flagFaulty, "faulty", false, "wrap the transport in a boundary adversary (§9)")
	rootCmd.Flags().StringVar(&flagTransport, "transport", "udp", "udp | websocket | nats")
	rootCmd.Flags().StringVar(&flagNATSURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL when --transport=nats")
	rootCmd.Flags().StringVar(&flagAdminBind, "admin-bind", "", "optional host:port for the read-only admin HTTP surface")
	rootCmd.Flags().StringVar(&flagAdminToken, "admin-token", "", "bearer token required on the admin surface's /status route; empty disables auth")
	rootCmd.Flags().StringVar(&flagPersist, "persist", "", "optional postgres DSN to durably mirror commits and stable checkpoints")
	rootCmd.Flags().StringVar(&flagRedisAddr, "redis-addr", "", "optional redis address to mirror commits and stable checkpoints to; takes precedence over --persist")
	rootCmd.MarkFlagRequired("bind")
	rootCmd.MarkFlagRequired("peers")
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func runReplica(cmd *cobra.Command, args []string) error {
	peers := splitNonEmpty(flagPeers)
	clients := splitNonEmpty(flagClients)

	cfg, err := config.LoadReplicaConfig(flagID, flagBind, peers, clients, flagF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(bfterrors.NewConfigInvalidError(err.Error()).ExitCode())
	}
	if flagFaulty {
		cfg.Faulty = true
	}
	if flagAdminBind != "" {
		cfg.AdminBind = flagAdminBind
	}
	if flagPersist != "" {
		cfg.Persist = flagPersist
	}
	if flagRedisAddr != "" {
		cfg.RedisAddr = flagRedisAddr
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	ks, err := keystore.Load(cfg.Keystore, keystore.ReplicaPrincipal(cfg.ID))
	if err != nil {
		log.Error("keystore load failed", zap.Error(err))
		os.Exit(bfterrors.NewConfigInvalidError(err.Error()).ExitCode())
	}

	met := metrics.New()

	var audit bft.AuditSink
	if cfg.RedisAddr != "" {
		store, err := storage.NewRedis(cfg.RedisAddr, log)
		if err != nil {
			log.Warn("redis audit store unavailable, continuing without it", zap.Error(err))
		} else {
			audit = storage.NewSink(store, log)
		}
	} else if cfg.Persist != "" {
		store, err := storage.NewPostgres(cfg.Persist, log)
		if err != nil {
			log.Warn("postgres audit store unavailable, continuing without it", zap.Error(err))
		} else {
			audit = storage.NewSink(store, log)
		}
	}

	baseTransport, cleanup, err := buildTransport(cfg, peers, clients, log)
	if err != nil {
		log.Error("transport setup failed", zap.Error(err))
		os.Exit(bfterrors.NewConfigInvalidError(err.Error()).ExitCode())
	}
	defer cleanup()

	var tr bft.Transport = baseTransport
	if cfg.Faulty {
		tr = faulty.New(baseTransport, faulty.ModeRandomDrop, 0.3, int64(cfg.ID)+1, log)
		log.Warn("running as a boundary adversary", zap.Uint32("id", cfg.ID))
	}

	replica := bft.NewReplica(bft.ReplicaOpts{
		ID:                 cfg.ID,
		F:                  cfg.F,
		CheckpointInterval: cfg.CheckpointInterval,
		Watermark:          cfg.Watermark,
		CohesionWindow:     cfg.CohesionWindow,
		ViewTimeout:        cfg.ViewTimeout,
		ClientRatePerSec:   200,
		ClientBurst:        50,
		Transport:          tr,
		Keys:               ks,
		Metrics:            met,
		Audit:              audit,
		Log:                log,
	})

	registerInbound(baseTransport, replica)

	if cfg.AdminBind != "" {
		srv := admin.New(admin.Opts{
			Bind:       cfg.AdminBind,
			Metrics:    met,
			Source:     replica,
			AdminToken: flagAdminToken,
			Log:        log,
		})
		go func() {
			if err := srv.Run(); err != nil {
				log.Warn("admin server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("replica starting", zap.Uint32("id", cfg.ID), zap.Int("f", cfg.F), zap.String("bind", cfg.Bind))
	replica.Run(ctx)
	log.Info("replica shut down")
	return nil
}

// buildTransport constructs the chosen Transport and returns a cleanup
// func. Peers/clients are addressed by their position in the
// comma-separated flags: position i is replica/client id i.
func buildTransport(cfg *config.ReplicaConfig, peers, clients []string, log *zap.Logger) (replicaTransport, func(), error) {
	switch flagTransport {
	case "udp":
		replicaMap := map[uint32]string{}
		for i, addr := range peers {
			replicaMap[uint32(i)] = addr
		}
		clientMap := map[uint32]string{}
		for i, addr := range clients {
			clientMap[uint32(i)] = addr
		}
		t, err := transport.NewUDPTransport(transport.UDPOpts{
			Bind: cfg.Bind, SelfID: cfg.ID, Replicas: replicaMap, Clients: clientMap, Log: log,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Close() }, nil
	case "websocket":
		peerMap := map[uint32]string{}
		for i, addr := range peers {
			peerMap[uint32(i)] = addr
		}
		var clientIDs []uint32
		for i := range clients {
			clientIDs = append(clientIDs, uint32(i))
		}
		t := transport.NewWebSocketTransport(transport.WebSocketOpts{
			SelfID: cfg.ID, Bind: cfg.Bind, Peers: peerMap, ClientIDs: clientIDs, Log: log,
		})
		if err := t.Start(); err != nil {
			return nil, nil, err
		}
		return t, func() { t.Stop() }, nil
	case "nats":
		var peerIDs []uint32
		for i := range peers {
			peerIDs = append(peerIDs, uint32(i))
		}
		t, err := transport.NewNATSTransport(transport.NATSOpts{
			URL: flagNATSURL, SelfID: cfg.ID, Kind: "replica", Peers: peerIDs, Log: log,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown --transport %q", flagTransport)
	}
}

// replicaTransport is the subset every transport.* constructor above
// returns that registerInbound needs to wire inbound delivery.
type replicaTransport interface {
	bft.Transport
}

func registerInbound(t replicaTransport, replica *bft.Replica) {
	switch impl := t.(type) {
	case *transport.UDPTransport:
		impl.OnReplicaMessage(replica.Enqueue)
		go impl.Serve()
	case *transport.WebSocketTransport:
		impl.OnReplicaMessage(replica.Enqueue)
	case *transport.NATSTransport:
		impl.OnMessage(replica.Enqueue)
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = lvl
	}
	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
