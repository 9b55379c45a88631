// Command client issues a single request against a BFT2F cluster and
// reports the quorum outcome (§6).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruvnet/alienator/internal/bft"
	"github.com/ruvnet/alienator/internal/bft/keystore"
	"github.com/ruvnet/alienator/internal/config"
	bfterrors "github.com/ruvnet/alienator/internal/errors"
	"github.com/ruvnet/alienator/internal/transport"
)

var (
	flagID        uint32
	flagBind      string
	flagReplicas  string
	flagF         int
	flagOp        string
	flagTransport string
	flagNATSURL   string
	flagTimeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "client",
	Short: "Issue one request against a BFT2F cluster",
	RunE:  runClient,
}

func init() {
	rootCmd.Flags().Uint32Var(&flagID, "id", 0, "this client's numeric id")
	rootCmd.Flags().StringVar(&flagBind, "bind", "", "host:port to bind the client's own socket")
	rootCmd.Flags().StringVar(&flagReplicas, "replicas", "", "comma-separated host:port list, ordered by replica id, N=3f+1 entries")
	rootCmd.Flags().IntVar(&flagF, "f", 1, "tolerated number of faulty replicas")
	rootCmd.Flags().StringVar(&flagOp, "op", "", "operation payload to submit")
	rootCmd.Flags().StringVar(&flagTransport, "transport", "udp", "udp | websocket | nats")
	rootCmd.Flags().StringVar(&flagNATSURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL when --transport=nats")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "overall deadline for the request")
	rootCmd.MarkFlagRequired("bind")
	rootCmd.MarkFlagRequired("replicas")
	rootCmd.MarkFlagRequired("op")
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

func runClient(cmd *cobra.Command, args []string) error {
	replicas := splitNonEmpty(flagReplicas)

	cfg, err := config.LoadClientConfig(flagID, flagBind, replicas, flagF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(bfterrors.NewConfigInvalidError(err.Error()).ExitCode())
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	ks, err := keystore.Load(cfg.Keystore, keystore.ClientPrincipal(cfg.ID))
	if err != nil {
		log.Error("keystore load failed", zap.Error(err))
		os.Exit(bfterrors.NewConfigInvalidError(err.Error()).ExitCode())
	}

	var replicaIDs []uint32
	for i := range replicas {
		replicaIDs = append(replicaIDs, uint32(i))
	}

	baseTransport, cleanup, err := buildClientTransport(cfg, replicas, replicaIDs, log)
	if err != nil {
		log.Error("transport setup failed", zap.Error(err))
		os.Exit(bfterrors.NewConfigInvalidError(err.Error()).ExitCode())
	}
	defer cleanup()

	c := bft.NewClient(bft.ClientOpts{
		ID:        cfg.ID,
		F:         cfg.F,
		Replicas:  replicaIDs,
		Transport: baseTransport,
		Keys:      ks,
		Log:       log,
	})
	registerClientInbound(baseTransport, c)

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	pr, err := c.MakeRequest(ctx, []byte(flagOp))
	if err != nil {
		outcome := bft.OutcomePending
		if pr != nil {
			outcome, _ = pr.Outcome()
		}
		log.Warn("request did not complete", zap.Error(err), zap.Int("outcome", int(outcome)))
		os.Exit(exitForOutcome(outcome))
	}

	outcome, result := pr.Outcome()
	switch outcome {
	case bft.OutcomeComplete:
		fmt.Printf("%s\n", result)
		os.Exit(0)
	case bft.OutcomeForkSuspected:
		fmt.Fprintln(os.Stderr, "fork suspected: replicas disagree on current system state")
		os.Exit(bfterrors.NewChecksumMismatchError("fork suspected").ExitCode())
	default:
		fmt.Fprintln(os.Stderr, "request left pending")
		os.Exit(bfterrors.NewViewChangeFailedError("request left pending").ExitCode())
	}
	return nil
}

func exitForOutcome(o bft.Outcome) int {
	if o == bft.OutcomeForkSuspected {
		return bfterrors.NewChecksumMismatchError("fork suspected").ExitCode()
	}
	return bfterrors.NewViewChangeFailedError("request timed out").ExitCode()
}

func buildClientTransport(cfg *config.ClientConfig, replicas []string, replicaIDs []uint32, log *zap.Logger) (clientTransport, func(), error) {
	switch flagTransport {
	case "udp":
		replicaMap := map[uint32]string{}
		for i, addr := range replicas {
			replicaMap[uint32(i)] = addr
		}
		t, err := transport.NewUDPTransport(transport.UDPOpts{
			Bind: cfg.Bind, SelfID: cfg.ID, Replicas: replicaMap, Log: log,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Close() }, nil
	case "websocket":
		peerMap := map[uint32]string{}
		for i, addr := range replicas {
			peerMap[uint32(i)] = addr
		}
		t := transport.NewWebSocketTransport(transport.WebSocketOpts{
			SelfID: cfg.ID, Bind: cfg.Bind, Peers: peerMap, Log: log,
		})
		if err := t.Start(); err != nil {
			return nil, nil, err
		}
		return t, func() { t.Stop() }, nil
	case "nats":
		t, err := transport.NewNATSTransport(transport.NATSOpts{
			URL: flagNATSURL, SelfID: cfg.ID, Kind: "client", Peers: replicaIDs, Log: log,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown --transport %q", flagTransport)
	}
}

type clientTransport interface {
	bft.Transport
}

func registerClientInbound(t clientTransport, c *bft.Client) {
	switch impl := t.(type) {
	case *transport.UDPTransport:
		impl.OnClientMessage(c.Deliver)
		go impl.Serve()
	case *transport.WebSocketTransport:
		impl.OnClientMessage(c.Deliver)
	case *transport.NATSTransport:
		impl.OnMessage(c.Deliver)
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
