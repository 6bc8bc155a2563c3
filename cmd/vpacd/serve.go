package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/session"
	"github.com/virtualtestset/vpac/pkg/telemetry"
	"github.com/virtualtestset/vpac/pkg/workerpool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.NoArgs,
	Short: "Publish configured SV streams and serve metrics until interrupted",
	Long: `Starts every stream declared in the config file, exposes the
Prometheus metrics endpoint, and blocks until interrupted. Configured
GOOSE subscriptions are not opened and trip rules are not evaluated. Unlike "test" and "sequence", serve runs indefinitely
with no bounded tester driving it — intended as a standalone signal
generator against a relay under test.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("iface", "", "network interface to publish on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	iface, _ := cmd.Flags().GetString("iface")
	if err := requireIface(iface); err != nil {
		return err
	}

	log := newLogger(cfg)
	met := telemetry.NewMetrics()
	log.Info("vpacd serve starting", "version", version, "iface", iface)

	pool := workerpool.New(workerpool.Config{
		NumWorkers:    cfg.WorkerPool.NumWorkers,
		QueueCapacity: cfg.WorkerPool.QueueCapacity,
		RTPriority:    cfg.WorkerPool.RTPriority,
		CPUSet:        cfg.WorkerPool.CPUSet,
		Log:           log,
	})
	defer pool.Shutdown()

	mgr := publisher.New(pool, log, met)
	for _, s := range cfg.Streams {
		initial := session.NominalState(s.NominalFreq)
		if err := mgr.Create(s, initial, openSink, iface); err != nil {
			return fmt.Errorf("stream %q: %w", s.StreamID, err)
		}
		if err := mgr.Start(s.StreamID); err != nil {
			return fmt.Errorf("stream %q: %w", s.StreamID, err)
		}
		log.Info("stream started", "stream_id", s.StreamID, "sv_id", s.SvID)
	}
	defer func() {
		for _, s := range cfg.Streams {
			if err := mgr.Stop(s.StreamID); err != nil {
				log.Warn("stream stop failed", "stream_id", s.StreamID, "error", err)
			}
		}
	}()

	httpSrv := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: met.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	log.Info("metrics endpoint listening", "addr", cfg.Telemetry.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("interrupt received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}
