package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type settlementService struct {
	ledger   *ledger
	notifier Notifier
}

func NewSettlementService(store repository.Store, clk clock.Clock, opts LedgerOptions, notifier Notifier) SettlementService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &settlementService{
		ledger:   newLedger(store, clk, opts),
		notifier: notifier,
	}
}

// PreviewSettlement projects the collector's day without writing anything.
func (s *settlementService) PreviewSettlement(ctx context.Context, collectorID int64, day time.Time) (*domain.SettlementPreview, error) {
	preview := &domain.SettlementPreview{
		CollectorID:      collectorID,
		Date:             domain.DayStart(day),
		Movements:        []domain.Movement{},
		AmountDue:        decimal.Zero,
		TotalSavings:     decimal.Zero,
		TotalWithdrawals: decimal.Zero,
	}
	err := s.ledger.read(ctx, "previewSettlement", func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Directory.GetCollector(ctx, collectorID); err != nil {
			return err
		}

		service, err := balanceOf(ctx, repos, collectorID, domain.AccountTypeCollectorService)
		if err != nil {
			return err
		}
		shortage, err := balanceOf(ctx, repos, collectorID, domain.AccountTypeCollectorShortage)
		if err != nil {
			return err
		}
		preview.ServiceBalance = service
		preview.ShortageBalance = shortage
		preview.AmountDue = service.Amount.Abs()

		journal, err := repos.Journals.GetByCollectorAndDate(ctx, collectorID, day)
		if errors.Is(err, domain.ErrJournalNotFound) {
			preview.State = domain.SettlementStateNoJournal
			return nil
		}
		if err != nil {
			return err
		}
		preview.Journal = journal

		movements, err := repos.Movements.ListByJournal(ctx, journal.ID)
		if err != nil {
			return err
		}
		preview.Movements = movements
		preview.TotalSavings, preview.TotalWithdrawals = journalTotals(movements)

		settlement, err := repos.Settlements.GetByCollectorAndDate(ctx, collectorID, day)
		switch {
		case err == nil:
			preview.Settlement = settlement
		case !errors.Is(err, domain.ErrSettlementNotFound):
			return err
		}

		if journal.IsClosed() {
			preview.State = domain.SettlementStateClosed
		} else {
			preview.State = domain.SettlementStatePreviewed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// Settle runs the end-of-day settlement: the balancing movements, the
// settlement record, the closure trace and the journal closure commit
// together or not at all.
func (s *settlementService) Settle(ctx context.Context, req domain.SettleRequest) (*domain.SettlementReceipt, error) {
	log := logger.WithCollector(req.CollectorID)
	log.Info("Settlement requested", "date", req.Date.Format("2006-01-02"), "amount_remitted", req.AmountRemitted.StringFixed(2))

	if req.AmountRemitted.IsNegative() {
		return nil, domain.NewValidationError("amount_remitted", "cannot be negative")
	}
	if err := checkScale("amount_remitted", req.AmountRemitted); err != nil {
		return nil, err
	}

	var (
		receipt   *domain.SettlementReceipt
		collector *domain.Collector
	)
	err := s.ledger.run(ctx, "settle", func(ctx context.Context, repos repository.Repositories) error {
		var err error
		collector, err = repos.Directory.GetCollector(ctx, req.CollectorID)
		if err != nil {
			return err
		}
		receipt, err = s.settle(ctx, repos, collector, req)
		return err
	})
	if err != nil {
		log.Warn("Settlement rejected", "error", err)
		return nil, err
	}

	for i := range receipt.Movements {
		logMovements(ctx, &receipt.Movements[i])
	}
	settlement := receipt.Settlement
	logger.WithJournal(collector.ID, receipt.Journal.ID).Info("Journal settled and closed",
		"outcome", settlement.Outcome,
		"authorization_number", settlement.AuthorizationNumber,
		"amount_collected", settlement.AmountCollected.StringFixed(2),
		"amount_remitted", settlement.AmountRemitted.StringFixed(2))

	if settlement.Outcome != domain.SettlementNormal {
		s.notifier.Notify(ctx, settlementNotification(collector, settlement))
	}
	return receipt, nil
}

func (s *settlementService) settle(ctx context.Context, repos repository.Repositories, collector *domain.Collector, req domain.SettleRequest) (*domain.SettlementReceipt, error) {
	now := s.ledger.clock.Now()
	day := domain.DayStart(req.Date)

	_, err := repos.Settlements.GetByCollectorAndDate(ctx, collector.ID, day)
	if err == nil {
		return nil, domain.ErrDuplicateSettlement
	}
	if !errors.Is(err, domain.ErrSettlementNotFound) {
		return nil, err
	}

	journal, err := repos.Journals.GetByCollectorAndDate(ctx, collector.ID, day)
	if err != nil {
		return nil, err
	}
	if journal.IsClosed() {
		return nil, domain.ErrJournalClosed
	}

	service, err := getOrCreateAccount(ctx, repos, collector.ID, domain.AccountTypeCollectorService)
	if err != nil {
		return nil, err
	}
	shortage, err := getOrCreateAccount(ctx, repos, collector.ID, domain.AccountTypeCollectorShortage)
	if err != nil {
		return nil, err
	}
	agency, err := getOrCreateAccount(ctx, repos, collector.AgencyID, domain.AccountTypeAgency)
	if err != nil {
		return nil, err
	}
	if service.Balance.IsPositive() {
		return nil, domain.NewValidationError("service_balance",
			fmt.Sprintf("collector service account holds %s in favor of the collector", service.Balance.StringFixed(2)))
	}

	dayMovements, err := repos.Movements.ListByJournal(ctx, journal.ID)
	if err != nil {
		return nil, err
	}
	savings, withdrawals := journalTotals(dayMovements)
	trace := &domain.ClosureTrace{
		JournalID:        journal.ID,
		CollectorID:      collector.ID,
		ServiceBalance:   service.Balance,
		ShortageBalance:  shortage.Balance,
		MovementCount:    len(dayMovements),
		TotalSavings:     savings,
		TotalWithdrawals: withdrawals,
		CapturedAt:       now,
	}

	due := service.Balance.Abs()
	outcome, surplus, shortfall := domain.ClassifySettlement(due, req.AmountRemitted)

	var steps []domain.TransferRequest
	remitted := due
	switch outcome {
	case domain.SettlementSurplus:
		steps = append(steps, domain.TransferRequest{
			SourceAccountID:      agency.ID,
			DestinationAccountID: shortage.ID,
			Amount:               surplus,
			Sense:                domain.SenseDebit,
			Label:                "Settlement surplus",
			BypassBalanceCheck:   true,
		})
	case domain.SettlementShortfall:
		steps = append(steps, domain.TransferRequest{
			SourceAccountID:      shortage.ID,
			DestinationAccountID: service.ID,
			Amount:               shortfall,
			Sense:                domain.SenseDebit,
			Label:                "Settlement shortfall",
			BypassBalanceCheck:   true,
		})
		remitted = req.AmountRemitted
	}
	steps = append(steps, domain.TransferRequest{
		SourceAccountID:      service.ID,
		DestinationAccountID: agency.ID,
		Amount:               remitted,
		Sense:                domain.SenseRemittance,
		Label:                "End of day remittance",
	})

	movements := []domain.Movement{}
	for _, step := range steps {
		if !step.Amount.IsPositive() {
			continue
		}
		step.JournalID = journal.ID
		m, err := transfer(ctx, repos, now, step)
		if err != nil {
			return nil, fmt.Errorf("settlement %s: %w", step.Label, err)
		}
		movements = append(movements, *m)
	}

	if err := repos.Settlements.CreateTrace(ctx, trace); err != nil {
		return nil, err
	}

	settlement := &domain.Settlement{
		CollectorID:         collector.ID,
		JournalID:           journal.ID,
		Date:                day,
		AmountCollected:     due,
		AmountRemitted:      req.AmountRemitted,
		Surplus:             surplus,
		Shortfall:           shortfall,
		Outcome:             outcome,
		AuthorizationNumber: newAuthorizationNumber(now),
		Comment:             req.Comment,
		CreatedBy:           req.CreatedBy,
		CreatedAt:           now,
	}
	if err := repos.Settlements.Create(ctx, settlement); err != nil {
		return nil, err
	}

	if err := repos.Journals.Close(ctx, journal.ID, now); err != nil {
		return nil, err
	}
	journal.Status = domain.JournalStatusClosed
	journal.ClosedAt = &now

	return &domain.SettlementReceipt{
		Settlement: settlement,
		Journal:    journal,
		Movements:  movements,
		Trace:      trace,
	}, nil
}

func (s *settlementService) AuthorizationTicket(ctx context.Context, collectorID int64, day time.Time) (string, error) {
	var ticket domain.AuthorizationTicket
	err := s.ledger.read(ctx, "authorizationTicket", func(ctx context.Context, repos repository.Repositories) error {
		settlement, err := repos.Settlements.GetByCollectorAndDate(ctx, collectorID, day)
		if err != nil {
			return err
		}
		collector, err := repos.Directory.GetCollector(ctx, collectorID)
		if err != nil {
			return err
		}
		agency, err := repos.Directory.GetAgency(ctx, collector.AgencyID)
		if err != nil {
			return err
		}
		journal, err := repos.Journals.GetByID(ctx, settlement.JournalID)
		if err != nil {
			return err
		}
		ticket = domain.AuthorizationTicket{
			Settlement: *settlement,
			Collector:  *collector,
			Agency:     *agency,
			Journal:    *journal,
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return FormatAuthorizationTicket(ticket), nil
}

// balanceOf reads an account balance, reporting an account that was never
// opened as unknown rather than zero.
func balanceOf(ctx context.Context, repos repository.Repositories, ownerID int64, accountType domain.AccountType) (domain.Balance, error) {
	account, err := repos.Accounts.GetByOwner(ctx, ownerID, accountType)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Balance{Amount: decimal.Zero}, nil
	}
	if err != nil {
		return domain.Balance{}, err
	}
	return domain.KnownBalance(account.Balance), nil
}

func journalTotals(movements []domain.Movement) (savings, withdrawals decimal.Decimal) {
	savings, withdrawals = decimal.Zero, decimal.Zero
	for _, m := range movements {
		switch m.Sense {
		case domain.SenseSavings:
			savings = savings.Add(m.Amount)
		case domain.SenseWithdrawal:
			withdrawals = withdrawals.Add(m.Amount)
		}
	}
	return savings, withdrawals
}

func newAuthorizationNumber(now time.Time) string {
	return "AUT-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

func settlementNotification(collector *domain.Collector, settlement *domain.Settlement) *domain.Notification {
	note := &domain.Notification{
		CollectorID: collector.ID,
		AgencyID:    collector.AgencyID,
		Attributes: map[string]string{
			"authorization_number": settlement.AuthorizationNumber,
			"date":                 settlement.Date.Format("2006-01-02"),
			"amount_due":           settlement.AmountCollected.StringFixed(2),
			"amount_remitted":      settlement.AmountRemitted.StringFixed(2),
		},
	}
	if settlement.Outcome == domain.SettlementSurplus {
		note.Kind = domain.NotificationSettlementSurplus
		note.Title = "Settlement surplus"
		note.Message = fmt.Sprintf("%s remitted %s more than due on %s. The excess is held on the shortage account.",
			collector.Name, settlement.Surplus.StringFixed(2), settlement.Date.Format("2006-01-02"))
		note.Attributes["surplus"] = settlement.Surplus.StringFixed(2)
	} else {
		note.Kind = domain.NotificationSettlementShortfall
		note.Title = "Settlement shortfall"
		note.Message = fmt.Sprintf("%s remitted %s less than due on %s. The deficit is recorded as a debt.",
			collector.Name, settlement.Shortfall.StringFixed(2), settlement.Date.Format("2006-01-02"))
		note.Attributes["shortfall"] = settlement.Shortfall.StringFixed(2)
	}
	return note
}
