package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"anchord/internal/config"
	"anchord/internal/daemon"
	"anchord/internal/ingest"
	"anchord/internal/ledger"
	"anchord/internal/logging"
	"anchord/internal/outbox"
	"anchord/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := outbox.Open(cfg)
	if err != nil {
		logger.Error("open outbox store", logging.Error(err))
		return
	}

	providers, err := ledger.New(cfg)
	if err != nil {
		logger.Error("configure ledger providers", logging.Error(err))
		store.Close()
		return
	}

	sched := scheduler.New(cfg, store, providers, logger)

	var runner *ingest.Runner
	if cfg.Ingest.Enabled {
		consumer, err := ingest.NewKafkaConsumer(cfg.Ingest, logger)
		if err != nil {
			logger.Error("configure kafka ingest", logging.Error(err))
			store.Close()
			return
		}
		runner = ingest.NewRunner(consumer, store, logger)
	}

	d, err := daemon.New(cfg, store, providers, sched, runner, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("anchord shutting down")
}
