package cli

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/config"
	"github.com/pierky/nat64d/internal/nat64/ctlplane"
	"github.com/pierky/nat64d/internal/nat64/datapath"
	"github.com/pierky/nat64d/internal/nat64/hashfn"
	"github.com/pierky/nat64d/internal/nat64/logging"
	"github.com/pierky/nat64d/internal/nat64/metrics"
	"github.com/pierky/nat64d/internal/nat64/palloc"
	"github.com/pierky/nat64d/internal/nat64/pool4"
	"github.com/pierky/nat64d/internal/nat64/session"
)

func runCmd() *cobra.Command {
	var configFile, metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nat64d daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(configFile, socketPath, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to an HCL configuration file (optional, defaults are used otherwise)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9099", "address to serve Prometheus metrics on (empty disables it)")
	return cmd
}

func runDaemon(configFile, socket, metricsAddr string) error {
	logger := logging.NewText(os.Stderr, slog.LevelInfo)

	snap := config.DefaultSnapshot()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return err
		}
		snap, err = config.Decode(configFile, data, snap)
		if err != nil {
			return err
		}
	}
	cfg := config.NewStore(snap)

	pool4DB := pool4.NewDB()
	bibDB := bib.NewDB()
	sessions := session.NewTable(bibDB)

	f, err := hashfn.New()
	if err != nil {
		return err
	}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return err
	}
	warnings := logging.NewRateLimiter(logger, 30*time.Second)
	alloc := palloc.New(pool4DB, bibDB, f, snap.FArgs, binary.BigEndian.Uint32(seed[:]), warnings)
	dispatcher := datapath.New(cfg, bibDB, sessions, alloc, logger)

	sweeper := session.NewSweeper(sessions, logger, time.Second, time.Minute)
	sweeper.Start()
	defer sweeper.Stop()

	_ = os.Remove(socket)
	ln, err := net.Listen("unix", socket)
	if err != nil {
		return err
	}
	defer ln.Close()

	// Packet ingestion (reading from a TUN device, XDP hook or netfilter
	// queue) is an external collaborator; dispatcher is wired here so the
	// control plane can enable/disable it and so the full object graph is
	// assembled, but nothing in this process feeds it packets yet.
	srv := ctlplane.NewServer(pool4DB, bibDB, sessions, cfg, dispatcher, logger)
	go func() {
		if err := srv.Serve(ln); err != nil {
			logger.Error("control-plane server stopped", "err", err)
		}
	}()

	var metricsSrv *http.Server
	if metricsAddr != "" {
		m := metrics.New()
		if err := m.Register(); err != nil {
			return err
		}
		alloc.SetMetrics(m)
		stopSync := make(chan struct{})
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.SyncGauges(pool4DB, bibDB, sessions)
				case <-stopSync:
					return
				}
			}
		}()
		defer close(stopSync)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(ctx)
		}()
	}

	logger.Info("nat64d running", "socket", socket)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("nat64d shutting down")
	return nil
}
