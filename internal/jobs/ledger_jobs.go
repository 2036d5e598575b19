package jobs

import (
	"context"
	"fmt"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"

	"github.com/shopspring/decimal"
)

// TakeBalanceSnapshots records the end-of-day balance of every account
func (jr *JobRunner) TakeBalanceSnapshots() {
	jr.runWithRecovery("TakeBalanceSnapshots", func() {
		ctx := context.Background()
		repos := jr.store.Repos()
		takenOn := domain.DayStart(jr.clock.Now())

		accounts, err := repos.Accounts.List(ctx)
		if err != nil {
			logger.Error("Failed to list accounts", "error", err)
			return
		}

		count := 0
		for _, a := range accounts {
			snapshot := &domain.BalanceSnapshot{
				AccountID: a.ID,
				Balance:   a.Balance,
				Version:   a.Version,
				TakenOn:   takenOn,
			}
			if err := repos.Accounts.CreateSnapshot(ctx, snapshot); err != nil {
				logger.Error("Failed to snapshot account balance", "account_id", a.ID, "error", err)
				continue
			}
			count++
		}

		logger.Info("Balance snapshots taken", "count", count, "taken_on", takenOn.Format("2006-01-02"))
	})
}

// FlagUnsettledJournals alerts supervisors about journals from earlier days
// that were never settled.
func (jr *JobRunner) FlagUnsettledJournals() {
	jr.runWithRecovery("FlagUnsettledJournals", func() {
		ctx := context.Background()
		repos := jr.store.Repos()

		journals, err := repos.Journals.ListOpenBefore(ctx, jr.clock.Now())
		if err != nil {
			logger.Error("Failed to list open journals", "error", err)
			return
		}

		for _, j := range journals {
			collector, err := repos.Directory.GetCollector(ctx, j.CollectorID)
			if err != nil {
				logger.Error("Failed to load collector of unsettled journal", "journal_id", j.ID, "error", err)
				continue
			}
			day := j.Date().Format("2006-01-02")
			jr.services.Notifier.Notify(ctx, &domain.Notification{
				CollectorID: collector.ID,
				AgencyID:    collector.AgencyID,
				Kind:        domain.NotificationUnsettledJournal,
				Title:       "Unsettled journal",
				Message:     fmt.Sprintf("%s has not settled the journal %s of %s.", collector.Name, j.Reference, day),
				Attributes: map[string]string{
					"journal_id": fmt.Sprint(j.ID),
					"reference":  j.Reference,
					"date":       day,
				},
			})
		}

		logger.Info("Unsettled journals flagged", "count", len(journals))
	})
}

// VerifyLedgerIntegrity replays every account's movements from a zero
// opening balance and reports accounts whose stored balance disagrees.
func (jr *JobRunner) VerifyLedgerIntegrity() {
	jr.runWithRecovery("VerifyLedgerIntegrity", func() {
		report, err := jr.CheckLedgerIntegrity(context.Background())
		if err != nil {
			logger.Error("Failed to verify ledger integrity", "error", err)
			return
		}
		if report.Healthy() {
			logger.Info("Ledger integrity verified", "accounts_checked", report.AccountsChecked)
			return
		}
		for _, d := range report.Drifts {
			logger.Error("Ledger drift detected",
				"account_id", d.AccountID, "number", d.Number,
				"stored", d.Stored.StringFixed(2), "replayed", d.Replayed.StringFixed(2))
		}
		jr.services.Notifier.Notify(context.Background(), &domain.Notification{
			Kind:    domain.NotificationLedgerDrift,
			Title:   "Ledger drift detected",
			Message: fmt.Sprintf("%d of %d accounts disagree with their movements.", len(report.Drifts), report.AccountsChecked),
			Attributes: map[string]string{
				"first_account": report.Drifts[0].Number,
				"difference":    report.Drifts[0].Difference().StringFixed(2),
			},
		})
	})
}

// CheckLedgerIntegrity builds the integrity report without alerting.
func (jr *JobRunner) CheckLedgerIntegrity(ctx context.Context) (*domain.IntegrityReport, error) {
	repos := jr.store.Repos()
	accounts, err := repos.Accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	report := &domain.IntegrityReport{CheckedAt: jr.clock.Now(), Drifts: []domain.LedgerDrift{}}
	for _, a := range accounts {
		movements, err := repos.Movements.ListByAccount(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", a.ID, err)
		}
		report.AccountsChecked++
		replayed := domain.ReplayBalance(a.ID, decimal.Zero, movements)
		if !replayed.Equal(a.Balance) {
			report.Drifts = append(report.Drifts, domain.LedgerDrift{
				AccountID: a.ID,
				Number:    a.Number,
				Stored:    a.Balance,
				Replayed:  replayed,
			})
		}
	}
	return report, nil
}
