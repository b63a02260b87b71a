package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"virtual-atm/internal/atm"
	"virtual-atm/internal/config"
	"virtual-atm/internal/db"
	"virtual-atm/internal/logger"
	"virtual-atm/internal/service"
	"virtual-atm/internal/terminal"
	"virtual-atm/models"
	"virtual-atm/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "virtual-atm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env", "", "path to an env file (default: ./.env when present)")
	reconcile := flag.Bool("reconcile", false, "compare the accounts with a second medium, print a drift report and exit")
	against := flag.String("reconcile-with", "", "medium to compare against: file, mysql or postgres (default: ATM_STORE, which only checks that the medium reads back)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, conn, err := openRepository(ctx, cfg, cfg.Store, log)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}

	store := repository.NewAccountStore(repo, log)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	reconciler := service.NewReconciliationService(repo, log)

	if *reconcile {
		kind := *against
		if kind == "" {
			kind = cfg.Store
		}
		other, otherConn, err := openRepository(ctx, cfg, kind, log)
		if err != nil {
			return err
		}
		if otherConn != nil {
			defer otherConn.Close()
		}
		return reconcileWith(ctx, os.Stdout, store.Accounts(), other, log)
	}

	session := service.NewSessionService(store, reconciler, log)
	console := terminal.New(os.Stdin, os.Stdout, terminal.DetectStyle(cfg.Color, os.Stdout))
	machine := atm.NewMachine(session, console, log)

	err = machine.Run(ctx)
	if errors.Is(err, service.ErrTooManyAttempts) {
		log.Warn("Main: session locked out after failed authentication")
	}
	return err
}

// errDrift is returned by -reconcile when the two media disagree.
var errDrift = errors.New("accounts differ between media")

// reconcileWith compares accounts with other and writes the report to out.
func reconcileWith(ctx context.Context, out io.Writer, accounts []models.Account, other repository.AccountRepository, log *zap.Logger) error {
	report, err := service.NewReconciliationService(other, log).Reconcile(ctx, accounts)
	if err != nil {
		return err
	}
	service.WriteReport(out, report)
	if !report.Clean() {
		return errDrift
	}
	return nil
}

// openRepository opens the medium of the given kind using the locations in
// cfg. conn is nil for the file store.
func openRepository(ctx context.Context, cfg config.Config, kind string, log *zap.Logger) (repository.AccountRepository, *sql.DB, error) {
	switch kind {
	case config.StoreFile:
		return repository.NewFileAccountRepository(cfg.DataFile, log), nil, nil
	case config.StoreMySQL, config.StorePostgres:
	default:
		return nil, nil, fmt.Errorf("openRepository: unknown medium %q", kind)
	}
	cfg.Store = kind
	conn, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewSQLAccountRepository(conn, db.Dialect(kind), log), conn, nil
}
