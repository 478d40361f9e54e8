package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dexbot/goladder/internal/controlplane"
	"github.com/dexbot/goladder/internal/events"
	"github.com/dexbot/goladder/internal/journal"
	"github.com/dexbot/goladder/internal/ledger"
	"github.com/dexbot/goladder/internal/oracle"
	"github.com/dexbot/goladder/internal/strategies/staggered"
	"github.com/dexbot/goladder/pkg/config"
	"github.com/dexbot/goladder/pkg/logger"
	"github.com/dexbot/goladder/pkg/persistence"
	"github.com/dexbot/goladder/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		logrus.Fatalf("init logger: %v", err)
	}
	log := logrus.WithField("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store persistence.Service
	switch cfg.Persistence.Backend {
	case "json":
		store = persistence.NewJSONFileService(cfg.Persistence.Path)
	default:
		store, err = persistence.OpenBadger(cfg.Persistence.Path)
		if err != nil {
			log.Fatalf("open state store: %v", err)
		}
	}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("open journal: %v", err)
		}
	}

	dispatcher := events.NewDispatcher()
	locks := events.NewAccountLocks()
	mgr := shutdown.NewManager()

	var managed []controlplane.ManagedWorker
	for _, wc := range cfg.Workers {
		gwCfg := cfg.Gateway
		gwCfg.Account = wc.Account
		gw := ledger.NewClient(gwCfg, wc.Market)
		ora := oracle.New(gw, wc.Market.Symbol)

		w, err := staggered.New(wc, gw, ora, store, jrnl, locks.Get(wc.Account))
		if err != nil {
			// 配置非法的 worker 永不启动；其余 worker 照常运行
			log.Errorf("worker %s disabled: %v", wc.Name, err)
			continue
		}
		dispatcher.Register(ctx, w)
		managed = append(managed, w)
		go w.Run(ctx)
	}
	if len(managed) == 0 {
		log.Fatal("no runnable workers")
	}

	stream := ledger.NewStream(cfg.Stream, dispatcher)
	if err := stream.Start(ctx); err != nil {
		log.Fatalf("start event stream: %v", err)
	}
	mgr.OnShutdown(func(context.Context) { stream.Close() })

	if cfg.ControlPlane.Listen != "" {
		cp := controlplane.NewServer(cfg.ControlPlane.Listen, managed)
		cp.Start()
		mgr.OnShutdown(cp.Shutdown)
	}
	mgr.OnShutdown(func(context.Context) {
		if err := store.Close(); err != nil {
			log.Errorf("close state store: %v", err)
		}
		if err := jrnl.Close(); err != nil {
			log.Errorf("close journal: %v", err)
		}
	})

	log.Infof("goladder running with %d workers", len(managed))
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)
	dispatcher.Wait()
	log.Info("bye")
	os.Exit(0)
}
