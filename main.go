package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/stdr"
	flag "github.com/spf13/pflag"

	"dyndnsd/db"
	"dyndnsd/internal/config"
	"dyndnsd/internal/daemon"
	"dyndnsd/internal/database"
	"dyndnsd/internal/engine"
	"dyndnsd/internal/ipprobe"
	"dyndnsd/internal/model"
	"dyndnsd/internal/provider"
	"dyndnsd/internal/vault"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single reconciliation cycle and exit")
	forceSync := flag.Bool("force-sync", false, "Re-sync all provider identifiers before reconciling (implies -once)")
	verbosity := flag.Int("v", 0, "Log verbosity")
	flag.Parse()

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error(err, "failed to load config")
		os.Exit(1)
	}

	logger.Info("dyndnsd starting", "version", version)

	v, err := vault.Open(logger.WithName("vault"), cfg.Encryption.KeyFile)
	if err != nil {
		logger.Error(err, "failed to open credential vault")
		os.Exit(1)
	}

	store, err := database.Open(logger.WithName("database"), cfg.Database.DSN, v, db.MigrationsFS(), database.Options{
		PoolSize:       cfg.Database.PoolSize,
		AcquireTimeout: cfg.Database.AcquireTimeout,
	})
	if err != nil {
		logger.Error(err, "failed to open database")
		os.Exit(1)
	}

	probeCfg := ipprobe.Config{
		Timeout: cfg.Network.Timeout,
		Retries: cfg.Network.RetryAttempts,
	}
	if cfg.Network.IPv4Enabled {
		probeCfg.IPv4URL = cfg.Network.IPv4URL
	}
	if cfg.Network.IPv6Enabled {
		probeCfg.IPv6URL = cfg.Network.IPv6URL
	}
	probe := ipprobe.New(logger.WithName("ipprobe"), probeCfg)

	newClient := func(cred *model.Credential) engine.Provider {
		return provider.New(logger.WithName("provider"), provider.Config{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cred.BulkID + "." + cred.APIKey,
			Timeout: cfg.Provider.Timeout,
			Retries: cfg.Provider.RetryAttempts,
		})
	}

	eng := engine.New(logger.WithName("engine"), store, probe, newClient, engine.Options{
		DefaultTTL: cfg.DNS.DefaultTTL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once || *forceSync {
		var ok bool
		if *forceSync {
			ok = eng.ForceReconcile(ctx)
		} else {
			ok = eng.RunCycle(ctx)
		}
		eng.Cleanup()
		if !ok {
			os.Exit(1)
		}
		return
	}

	d := daemon.New(logger.WithName("daemon"), eng, cfg.Daemon.Interval)
	d.Run(ctx)
}
