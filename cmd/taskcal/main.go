package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskcal/internal/backup"
	"taskcal/internal/config"
	appLog "taskcal/internal/log"
	"taskcal/internal/planner"
	"taskcal/internal/store"
	"taskcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	listen     string
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	if lvl, err := appLog.ParseLevel(conf.LogLevel); err == nil {
		appLog.SetLevel(lvl)
	}

	appLog.Info("taskcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"storage_driver", conf.Storage.Driver,
		"storage_key", conf.Storage.Key,
		"max_bytes", conf.Storage.MaxBytes,
		"undo_window", conf.UndoWindow().String(),
		"max_occurrences", conf.MaxOccurrences,
		"backup_cron", conf.Backup.Cron,
		"basic_auth", conf.BasicAuth != nil,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags.debug); err != nil {
		appLog.Error("taskcal exited with error", err)
		os.Exit(1)
	}
	appLog.Info("taskcal exiting")
}

func run(ctx context.Context, conf *config.Config, debug bool) error {
	storage, closeStorage, err := openStorage(ctx, conf.Storage)
	if err != nil {
		return err
	}
	defer closeStorage()

	st := store.New(storage, store.Options{Key: conf.Storage.Key, MaxBytes: conf.Storage.MaxBytes})
	st.Load(ctx)

	p := planner.New(st, planner.Config{
		CreatedBy:      conf.CreatedBy,
		MaxOccurrences: conf.MaxOccurrences,
		UndoWindow:     conf.UndoWindow(),
	})
	defer p.Close()

	if conf.Backup.Cron != "" {
		bk := backup.New(st, backup.Config{Dir: conf.Backup.Dir, Keep: conf.Backup.Keep})
		if err := bk.Start(conf.Backup.Cron); err != nil {
			return err
		}
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			bk.Stop(stopCtx)
		}()
	}

	return web.NewServer(conf, p, debug).Run(ctx)
}

// openStorage builds the backend named by cfg.Driver. The returned func
// releases it.
func openStorage(ctx context.Context, cfg config.StorageConfig) (store.Storage, func(), error) {
	switch cfg.Driver {
	case "memory":
		appLog.Warn("memory storage selected; data is lost on exit")
		return store.NewMemoryStorage(), func() {}, nil
	case "redis":
		rs, err := store.NewRedisStorage(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis storage: %w", err)
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				appLog.Warn("redis close failed", "err", err)
			}
		}, nil
	default:
		return store.NewFileStorage(cfg.Dir), func() {}, nil
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/taskcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
