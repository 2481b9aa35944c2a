package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/spacetime/internal/commitlog"
	"github.com/cuemby/spacetime/internal/config"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/engine"
	"github.com/cuemby/spacetime/internal/health"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/rls"
	"github.com/cuemby/spacetime/internal/subscription"
	"github.com/cuemby/spacetime/internal/wsserver"
	"github.com/cuemby/spacetime/pkg/log"
	"github.com/cuemby/spacetime/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the database engine, replaying any existing commit log before accepting connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		healthAddr, _ := cmd.Flags().GetString("health-addr")

		cfg := config.Default()
		if cfgPath != "" {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		if listenAddr != "" {
			cfg.Server.ListenAddr = listenAddr
		}
		if healthAddr != "" {
			cfg.Server.HealthAddr = healthAddr
		}

		return runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML configuration file (optional)")
	serveCmd.Flags().String("listen-addr", "", "WebSocket listen address, overrides the config file")
	serveCmd.Flags().String("health-addr", "", "Health/metrics listen address, overrides the config file")
}

func runServe(cfg config.Config) error {
	logger := log.WithComponent("spacetime")

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("spacetime: create data dir: %w", err)
	}

	ds := datastore.New()

	clOpts := commitlog.DefaultOptions()
	clOpts.MaxSegmentSize = uint64(cfg.Commitlog.SegmentMaxBytes)
	clOpts.OffsetIndexIntervalBytes = uint64(cfg.Commitlog.OffsetIndexInterval)
	cl, err := commitlog.Open[*datastore.CommitRecord](cfg.Storage.DataDir, clOpts)
	if err != nil {
		return fmt.Errorf("spacetime: open commit log: %w", err)
	}

	subs := subscription.NewManager()
	registry := protocol.NewRegistry()
	rules := rls.NewRuleSet()
	reducers := engine.NewReducerRegistry()

	owner, err := protocol.NewIdentity()
	if err != nil {
		return fmt.Errorf("spacetime: mint owner identity: %w", err)
	}

	// reducers starts empty: this binary has no WASM module loader (out of
	// scope) and registers no reducers, so every CallReducer it receives
	// fails as an unknown reducer. Reducers can only be added through
	// eng.Reducers() by code embedding the engine.
	eng := engine.New(ds, cl, subs, registry, rules, reducers, owner)

	if err := ds.Bootstrap(); err != nil {
		return fmt.Errorf("spacetime: bootstrap: %w", err)
	}
	logger.Info().Str("data_dir", cfg.Storage.DataDir).Msg("replaying commit log")
	if err := eng.Replay(cfg.Storage.DataDir); err != nil {
		return fmt.Errorf("spacetime: replay: %w", err)
	}

	metrics.SetVersion(Version)
	healthSrv := health.NewServer(eng)
	wsSrv := wsserver.NewServer(subs, registry, protocol.JSONCodec{}, eng)
	eng.SetDisconnector(wsSrv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go healthSrv.RunPoller(ctx, 5*time.Second)

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.Server.HealthAddr).Msg("health server listening")
		if err := healthSrv.Start(cfg.Server.HealthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.Server.ListenAddr).Msg("websocket server listening")
		if err := wsSrv.Start(cfg.Server.ListenAddr); err != nil {
			errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	cancel()
	if err := wsSrv.Stop(); err != nil {
		logger.Error().Err(err).Msg("websocket server stop failed")
	}
	if err := eng.Close(); err != nil {
		return fmt.Errorf("spacetime: close: %w", err)
	}
	return nil
}
