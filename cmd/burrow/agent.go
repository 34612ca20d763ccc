package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/storage"
)

func newAgentCmd() *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the convergence agent",
		Long: `Run the agent for this node. Every poll interval it re-reads the desired
configuration, discovers the datasets manifested here and creates the
missing ones.

The agent serves health, state and metrics over HTTP and the standard
gRPC health service. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: runAgent,
	}

	agentCmd.Flags().StringP("file", "f", "", "Desired configuration file (required)")
	_ = agentCmd.MarkFlagRequired("file")

	return agentCmd
}

func runAgent(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithHostname(cfg.Hostname).With().Str("component", "agent").Logger()

	components := metrics.NewComponents()

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open journal: %v", err)
	}
	defer store.Close()
	components.Report(metrics.ComponentJournal, nil)

	broker := events.NewBroker()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer sub.Close()
	go logEvents(sub)

	deployer, err := newDeployer(cfg, store, broker)
	if err != nil {
		return err
	}

	// Created before the reconciler so the first cycle can report to it
	var grpcServer *api.Server
	if cfg.API.GRPCAddr != "" {
		grpcServer = api.NewServer()
	}

	recon, err := reconciler.NewReconciler(reconciler.Config{
		Deployer: deployer,
		Source:   reconciler.FileSource{Path: filename},
		Interval: cfg.PollInterval,
		Journal:  store,
		Events:   broker,
		OnCycle: func(result reconciler.Result) {
			components.Report(metrics.ComponentReconciler, result.Err)
			if grpcServer != nil {
				grpcServer.SetServing(!result.Failed())
			}
		},
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(deployer.API(), cfg.Hostname, cfg.PollInterval, components)
	collector.Start()
	defer collector.Stop()

	errCh := make(chan error, 2)

	var httpServer *api.HealthServer
	if cfg.API.HTTPAddr != "" {
		httpServer = api.NewHealthServer(api.HealthServerConfig{
			Discoverer: deployer,
			Reconciler: recon,
			Journal:    store,
			Components: components,
			Version:    Version,
		})
		components.Report(metrics.ComponentAPI, nil)
		go func() {
			if err := httpServer.Start(cfg.API.HTTPAddr); err != nil {
				components.Report(metrics.ComponentAPI, err)
				errCh <- fmt.Errorf("HTTP server error: %v", err)
			}
		}()
		logger.Info().Str("addr", cfg.API.HTTPAddr).Msg("HTTP API listening")
	}

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Start(cfg.API.GRPCAddr); err != nil {
				errCh <- fmt.Errorf("gRPC server error: %v", err)
			}
		}()
	}

	recon.Start()
	logger.Info().
		Str("backend", cfg.Backend.Name).
		Str("mount_root", deployer.MountRoot()).
		Dur("interval", cfg.PollInterval).
		Msg("Agent started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	recon.Stop()
	if grpcServer != nil {
		grpcServer.Stop()
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
		cancel()
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}

// logEvents writes every event to the log until sub is closed
func logEvents(sub *events.Subscription) {
	logger := log.WithComponent("events")
	for event := range sub.Events {
		logger.Debug().
			Str("type", string(event.Type)).
			Interface("metadata", event.Metadata).
			Msg(event.Message)
	}
}
