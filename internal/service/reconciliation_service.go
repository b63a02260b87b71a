package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"virtual-atm/models"
	"virtual-atm/repository"
)

// AccountDrift pairs the in-memory and durable copies of one account.
type AccountDrift struct {
	AccountID string
	InMemory  models.Account
	OnMedium  models.Account
}

// DriftReport is the outcome of comparing the in-memory collection with the medium.
type DriftReport struct {
	Matched      []string
	Mismatched   []AccountDrift
	OnlyInMemory []models.Account
	OnlyOnMedium []models.Account
}

// Clean reports whether both sides agree.
func (r DriftReport) Clean() bool {
	return len(r.Mismatched) == 0 && len(r.OnlyInMemory) == 0 && len(r.OnlyOnMedium) == 0
}

// ReconciliationService defines the interface for reconciliation business logic.
type ReconciliationService interface {
	Reconcile(ctx context.Context, inMemory []models.Account) (DriftReport, error)
}

// reconciliationServiceImpl implements ReconciliationService.
type reconciliationServiceImpl struct {
	repo   repository.AccountRepository
	logger *zap.Logger
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(repo repository.AccountRepository, logger *zap.Logger) ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reconciliationServiceImpl{repo: repo, logger: logger}
}

// Reconcile reads the durable account set and compares it with inMemory.
// Two records match when PIN and balance (to the cent) agree.
func (s *reconciliationServiceImpl) Reconcile(ctx context.Context, inMemory []models.Account) (DriftReport, error) {
	var report DriftReport

	onMedium, err := s.repo.LoadAll(ctx)
	if err != nil && !errors.Is(err, repository.ErrNoData) {
		return report, fmt.Errorf("Reconcile: failed to load durable accounts: %w", err)
	}
	s.logger.Debug("ReconciliationService: comparing account sets",
		zap.Int("in_memory", len(inMemory)), zap.Int("on_medium", len(onMedium)))

	processed := make(map[string]bool, len(onMedium))
	for _, mem := range inMemory {
		i, ok := repository.FindByAccountID(onMedium, mem.AccountID())
		if !ok {
			report.OnlyInMemory = append(report.OnlyInMemory, mem)
			continue
		}
		med := onMedium[i]
		processed[med.AccountID()] = true
		if sameRecord(mem, med) {
			report.Matched = append(report.Matched, mem.AccountID())
		} else {
			report.Mismatched = append(report.Mismatched, AccountDrift{AccountID: mem.AccountID(), InMemory: mem, OnMedium: med})
		}
	}
	for _, med := range onMedium {
		if !processed[med.AccountID()] {
			report.OnlyOnMedium = append(report.OnlyOnMedium, med)
		}
	}
	return report, nil
}

func sameRecord(a, b models.Account) bool {
	return a.PIN() == b.PIN() && models.FormatMoney(a.Balance()) == models.FormatMoney(b.Balance())
}

// WriteReport prints a human readable drift report.
func WriteReport(w io.Writer, r DriftReport) {
	fmt.Fprintln(w, "\n--- Reconciliation Report ---")

	fmt.Fprintln(w, "\n[Accounts Matching Durable Storage]")
	if len(r.Matched) > 0 {
		for _, id := range r.Matched {
			fmt.Fprintf(w, "  MATCH: %s\n", id)
		}
	} else {
		fmt.Fprintln(w, "  None")
	}

	fmt.Fprintln(w, "\n[Accounts With Mismatched Balance or PIN]")
	if len(r.Mismatched) > 0 {
		for _, d := range r.Mismatched {
			fmt.Fprintf(w, "  MISMATCH: %s memory=%s medium=%s\n", d.AccountID,
				models.FormatMoney(d.InMemory.Balance()), models.FormatMoney(d.OnMedium.Balance()))
		}
	} else {
		fmt.Fprintln(w, "  None")
	}

	fmt.Fprintln(w, "\n[Accounts Only In Memory]")
	writeAccounts(w, r.OnlyInMemory)

	fmt.Fprintln(w, "\n[Accounts Only On Durable Storage]")
	writeAccounts(w, r.OnlyOnMedium)

	fmt.Fprintln(w, "\n--- End of Reconciliation Report ---")
}

func writeAccounts(w io.Writer, accounts []models.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "  None")
		return
	}
	for _, acc := range accounts {
		fmt.Fprintf(w, "  ID: %s, Balance: %s\n", acc.AccountID(), models.FormatMoney(acc.Balance()))
	}
}
