// Package reconciliation replays the transaction log against stored balances.
//
// Two invariants are checked per company: remaining = total - used on the
// account row, and sum(transaction credits) = remaining (replay consistency).
// Drift means a settlement or debit escaped its transaction boundary and
// needs operator attention; nothing here self-heals.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hirelens/payments/internal/ledger"
	"github.com/hirelens/payments/internal/metrics"
)

// Mismatch describes one account whose stored balance disagrees with its
// transaction log.
type Mismatch struct {
	CompanyID        string `json:"company_id"`
	TotalCredits     int64  `json:"total_credits"`
	UsedCredits      int64  `json:"used_credits"`
	RemainingCredits int64  `json:"remaining_credits"`
	ReplayedCredits  int64  `json:"replayed_credits"`
	Problem          string `json:"problem"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RanAt           time.Time  `json:"ran_at"`
	AccountsChecked int        `json:"accounts_checked"`
	Mismatches      []Mismatch `json:"mismatches"`
	DurationMS      int64      `json:"duration_ms"`
}

// Clean reports whether the run found no drift.
func (r *Report) Clean() bool {
	return len(r.Mismatches) == 0
}

// Runner executes reconciliation checks against the ledger store.
type Runner struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewRunner creates a reconciliation runner.
func NewRunner(store ledger.Store, logger *slog.Logger) *Runner {
	return &Runner{store: store, logger: logger}
}

// Run checks every account and returns a drift report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sums, err := r.store.SumTransactionsByCompany(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}

	report := &Report{
		RanAt:           start.UTC(),
		AccountsChecked: len(accounts),
		Mismatches:      []Mismatch{},
	}

	for _, acc := range accounts {
		if problem := checkAccount(acc, sums[acc.CompanyID]); problem != "" {
			report.Mismatches = append(report.Mismatches, Mismatch{
				CompanyID:        acc.CompanyID,
				TotalCredits:     acc.TotalCredits,
				UsedCredits:      acc.UsedCredits,
				RemainingCredits: acc.RemainingCredits,
				ReplayedCredits:  sums[acc.CompanyID],
				Problem:          problem,
			})
			r.logger.Error("ledger drift detected",
				"companyId", acc.CompanyID,
				"problem", problem,
				"remaining", acc.RemainingCredits,
				"replayed", sums[acc.CompanyID],
			)
		}
	}

	report.DurationMS = time.Since(start).Milliseconds()
	reconcileDuration.Observe(time.Since(start).Seconds())
	metrics.LedgerDriftAccounts.Set(float64(len(report.Mismatches)))

	if report.Clean() {
		r.logger.Debug("reconciliation clean", "accounts", report.AccountsChecked)
	}
	return report, nil
}

func checkAccount(acc *ledger.Account, replayed int64) string {
	switch {
	case acc.TotalCredits < 0 || acc.UsedCredits < 0 || acc.RemainingCredits < 0:
		return "negative balance component"
	case acc.RemainingCredits != acc.TotalCredits-acc.UsedCredits:
		return "remaining != total - used"
	case replayed != acc.RemainingCredits:
		return "transaction log does not replay to stored balance"
	}
	return ""
}
