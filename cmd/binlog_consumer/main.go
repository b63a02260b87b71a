package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"virtual-atm/internal/binlog"
	"virtual-atm/internal/config"
	"virtual-atm/internal/logger"
	"virtual-atm/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "binlog_consumer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env", "", "path to an env file (default: ./.env when present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if err := cfg.Replicator.Validate(); err != nil {
		return err
	}

	// Changes are logged at info, so the default console level is lowered.
	level := cfg.LogLevel
	if level == "warn" {
		level = "info"
	}
	log, closeLog, err := logger.New(logger.Options{Level: level, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := binlog.NewWatcher(cfg.Replicator, log)
	log.Info("Binlog: watching account changes",
		zap.String("schema", cfg.Replicator.Schema), zap.String("table", cfg.Replicator.Table))
	return watcher.Run(ctx, func(ctx context.Context, c binlog.AccountChange) error {
		fields := []zap.Field{zap.String("action", c.Action), zap.String("account_id", c.AccountID)}
		if c.Before != nil {
			fields = append(fields, zap.String("before", models.FormatMoney(c.Before.Balance())))
		}
		if c.After != nil {
			fields = append(fields, zap.String("after", models.FormatMoney(c.After.Balance())))
		}
		log.Info("Binlog: account change", fields...)
		return nil
	})
}
