// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the bridge's components together: the session
// registry, the WebSocket transport endpoints, the process supervisor,
// the model catalog, and the HTTP router. It owns the process's
// top-level lifecycle (Run/Shutdown).
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/claude-bridge/internal/api"
	"github.com/wingedpig/claude-bridge/internal/bridge"
	"github.com/wingedpig/claude-bridge/internal/catalog"
	"github.com/wingedpig/claude-bridge/internal/config"
	"github.com/wingedpig/claude-bridge/internal/process"
	"github.com/wingedpig/claude-bridge/internal/transport"
)

// App is the bridge's top-level container.
type App struct {
	mu sync.RWMutex

	configPath string
	version    string
	config     *config.Config

	registry   *bridge.Registry
	supervisor *process.Supervisor
	catalog    *catalog.Catalog
	transport  *transport.Endpoints
	watcher    *process.BinaryWatcher

	httpServer *http.Server

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds the inputs needed to construct an App.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Version    string
}

// New loads configuration and wires every component. It does not start
// the HTTP listener or launch any assistant process; call Run for that.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}

	a := &App{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		config:     cfg,
		done:       make(chan struct{}),
	}

	a.registry = bridge.NewRegistry(cfg.Bridge.UpstreamChannelCapacity, cfg.Bridge.SubscriberChannelCapacity, cfg.Bridge.PendingUpstreamCapacity)

	a.supervisor = process.NewSupervisor(cfg.Bridge.AssistantBinary, cfg.Bridge.ProcessGraceSeconds, cfg.Bridge.DiagnosticsBufferLines)
	a.supervisor.OnExit(func(sessionID string, err error) {
		if err != nil {
			log.Printf("session %s: assistant process exited: %v", sessionID, err)
		} else {
			log.Printf("session %s: assistant process exited", sessionID)
		}
	})

	cat, err := catalog.Load(cfg.Models.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	a.catalog = cat

	a.transport = transport.New(a.registry, time.Duration(cfg.Bridge.KeepaliveIntervalSeconds)*time.Second)

	if cfg.Bridge.WatchBinary {
		bw, err := process.WatchBinary(cfg.Bridge.AssistantBinary)
		if err != nil {
			log.Printf("Warning: failed to watch assistant binary %s: %v", cfg.Bridge.AssistantBinary, err)
		} else {
			a.watcher = bw
		}
	}

	bindAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := api.NewRouter(api.Dependencies{
		Registry:   a.registry,
		Supervisor: a.supervisor,
		Catalog:    a.catalog,
		Transport:  a.transport,
		BindAddr:   bindAddr,
		AuthToken:  cfg.Bridge.AuthToken,
	})

	a.httpServer = &http.Server{
		Addr:    bindAddr,
		Handler: router,
	}

	return a, nil
}

// Run starts the HTTP/WebSocket listener and blocks until a shutdown
// signal (SIGINT/SIGTERM), the context is cancelled, or Stop is called.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting bridge on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down...", sig)
		case <-gctx.Done():
		case <-a.done:
			log.Printf("Shutdown requested...")
		}
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown gracefully stops the HTTP server, kills every supervised
// assistant process, and closes the binary watcher. Safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("http server shutdown: %w", err)
	}

	if a.watcher != nil {
		a.watcher.Close()
	}

	for id := range a.registry.List() {
		a.supervisor.Kill(id)
	}

	log.Println("Shutdown complete")
	return firstErr
}

// Stop signals Run to shut down. Safe to call multiple times.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
}
