package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/quarryline/netsync/internal/config"
	coresys "github.com/quarryline/netsync/internal/core/system"
	"github.com/quarryline/netsync/internal/data"
	"github.com/quarryline/netsync/internal/handler"
	"github.com/quarryline/netsync/internal/metrics"
	gonet "github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/persist"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"github.com/quarryline/netsync/internal/scripting"
	"github.com/quarryline/netsync/internal/session"
	"github.com/quarryline/netsync/internal/world"
	"go.uber.org/zap"
)

// app holds everything both roles load before a session starts.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   persist.Store
	prefabs *data.PrefabTable
	scenes  *data.SceneTable
	catalog *replica.Catalog
	scripts *scripting.Engine
	metrics *metrics.Metrics
	promSrv *http.Server
	errCh   chan error
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(resolveConfigPath(cfgPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, errCh: make(chan error, 1)}

	printSection("data")
	if a.prefabs, err = data.LoadPrefabTable(cfg.Data.PrefabCatalog); err != nil {
		return nil, err
	}
	printStat("prefabs", a.prefabs.Count())
	if a.scenes, err = data.LoadSceneTable(cfg.Data.SceneManifest); err != nil {
		return nil, err
	}
	printStat("scenes", a.scenes.Count())
	if a.catalog, err = world.NewCatalog(a.prefabs); err != nil {
		return nil, fmt.Errorf("prefab catalog: %w", err)
	}

	if a.scripts, err = scripting.NewEngine(cfg.Scripting.Dir, log); err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}
	printOK("scripts loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if a.store, err = persist.Open(ctx, cfg.Store, log); err != nil {
		a.scripts.Close()
		return nil, fmt.Errorf("scene id store: %w", err)
	}
	printOK(fmt.Sprintf("scene id store (%s)", cfg.Store.Driver))

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		a.metrics = metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))
		a.promSrv = metrics.Serve(cfg.Metrics.Listen, reg, a.errCh)
		printOK(fmt.Sprintf("metrics on %s/metrics", cfg.Metrics.Listen))
	}
	fmt.Println()
	return a, nil
}

func (a *app) close() {
	if a.promSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.promSrv.Shutdown(ctx)
		cancel()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
	a.scripts.Close()
	a.log.Sync()
}

func (a *app) protocol() *protocol.Registry {
	reg := protocol.NewRegistry()
	protocol.RegisterCore(reg)
	handler.RegisterMessages(reg)
	return reg
}

func (a *app) objects(role protocol.Role, local protocol.Identity) *replica.Registry {
	return replica.NewRegistry(replica.Options{
		Role:         role,
		Local:        local,
		SceneIDLimit: a.cfg.Session.SceneIDLimit,
		Store:        a.store,
		Catalog:      a.catalog,
		Callbacks:    a.scripts,
		Log:          a.log,
	})
}

func (a *app) loader() *world.ManifestLoader {
	return world.NewManifestLoader(a.scenes, a.prefabs, a.catalog, a.log)
}

func (a *app) transportOptions() gonet.Options {
	n := a.cfg.Network
	return gonet.Options{
		InQueueSize:      n.InQueueSize,
		OutQueueSize:     n.OutQueueSize,
		WriteTimeout:     n.WriteTimeout,
		PacketsPerSecond: n.PacketsPerSecond,
	}
}

// gameplay drives the scripts' on_tick on unpaused ticks of s.
func (a *app) gameplay(s *session.Context) func(time.Duration) {
	return func(dt time.Duration) {
		if err := a.scripts.Tick(dt, s.Tick()); err != nil {
			a.log.Warn("gameplay script failed", zap.Uint64("tick", s.Tick()), zap.Error(err))
		}
	}
}

// loop ticks runner until ctx ends, a signal arrives or done closes.
func (a *app) loop(ctx context.Context, runner *coresys.Runner, done <-chan struct{}) error {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	rate := a.cfg.Session.TickRate
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runner.Tick(rate)
			a.metrics.ObserveTick(time.Since(start))
		case <-done:
			return nil
		case err := <-a.errCh:
			return fmt.Errorf("metrics server: %w", err)
		case sig := <-shutdownCh:
			a.log.Info("shutdown signal", zap.String("signal", sig.String()))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
