// Command flenode runs one peer of the ensemble: it loads configuration,
// wires the registry/ledger/transport collaborators to the election core,
// and serves the admin HTTP surface until signalled to shut down.
//
// Grounded on redis_supervisor_service/cmd/redis-supervisor/main.go's
// signal-handling/context-cancellation wiring order.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fzsens/zookeeper/internal/config"
	"github.com/fzsens/zookeeper/internal/httpapi"
	"github.com/fzsens/zookeeper/internal/ledger"
	"github.com/fzsens/zookeeper/internal/ops"
	"github.com/fzsens/zookeeper/internal/peerserver"
	"github.com/fzsens/zookeeper/internal/registry"
	"github.com/fzsens/zookeeper/internal/transport"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	log.Logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		logger.Info().Msg("shutdown signal received, cancelling context")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Info().
		Str("self_id", cfg.SelfID).
		Str("bind_addr", cfg.BindAddr).
		Str("http_addr", cfg.HTTPAddr).
		Int("peers", len(cfg.Peers)).
		Msg("starting flenode")

	members := make([]registry.Member, 0, len(cfg.Peers)+1)
	selfIncluded := false
	for _, p := range cfg.Peers {
		if p.ID == cfg.SelfID {
			selfIncluded = true
		}
		members = append(members, registry.Member{ID: p.ID, Address: p.Address, Weight: p.Weight})
	}
	if !selfIncluded {
		members = append(members, registry.Member{ID: cfg.SelfID, Address: cfg.BindAddr, Weight: 1})
	}
	reg := registry.New(cfg.SelfID, members)

	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open ledger")
	}
	defer store.Close()

	manager := transport.NewManager(cfg.SelfID, reg.Addresses(), logger)
	if err := manager.Start(cfg.BindAddr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start transport")
	}

	peer := peerserver.New(reg, store, manager, logger)
	go peer.Run(ctx)
	defer peer.Halt()

	var restarter *ops.ContainerRestarter
	if r, err := ops.NewContainerRestarter(cfg.DockerHost); err != nil {
		logger.Warn().Err(err).Msg("docker client unavailable, restart route disabled")
	} else {
		restarter = r
		defer restarter.Close()
	}

	admin := httpapi.New(cfg.HTTPAddr, peer, store, restarter, logger)
	go func() {
		if err := admin.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := admin.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin server shutdown error")
	}

	logger.Info().Msg("flenode shutting down gracefully")
}
