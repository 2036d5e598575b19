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

	"github.com/shopspring/decimal"
)

type movementService struct {
	ledger   *ledger
	repos    repository.Repositories
	notifier Notifier
	signal   JobSignal
}

func NewMovementService(store repository.Store, clk clock.Clock, opts LedgerOptions, notifier Notifier, signal JobSignal) MovementService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if signal == nil {
		signal = noopSignal{}
	}
	return &movementService{
		ledger:   newLedger(store, clk, opts),
		repos:    store.Repos(),
		notifier: notifier,
		signal:   signal,
	}
}

func (s *movementService) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Movement, error) {
	logger.EnterMethod("movementService.Transfer", "sense", req.Sense, "journal_id", req.JournalID)
	var movement *domain.Movement
	err := s.ledger.run(ctx, "transfer", func(ctx context.Context, repos repository.Repositories) error {
		var err error
		movement, err = transfer(ctx, repos, s.ledger.clock.Now(), req)
		if err != nil {
			return err
		}
		return s.enqueueCommission(ctx, repos, movement)
	})
	if err != nil {
		logger.ExitMethodWithError("movementService.Transfer", err)
		return nil, err
	}
	logMovements(ctx, movement)
	s.wakeIfEligible(movement)
	logger.ExitMethod("movementService.Transfer")
	return movement, nil
}

// OpenJournal returns the collector's journal for the day, creating it
// when the day has none.
func (s *movementService) OpenJournal(ctx context.Context, collectorID int64, day time.Time) (*domain.Journal, error) {
	var journal *domain.Journal
	err := s.ledger.run(ctx, "openJournal", func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Directory.GetCollector(ctx, collectorID); err != nil {
			return err
		}
		var err error
		journal, err = openJournal(ctx, repos, collectorID, day, s.ledger.clock.Now())
		return err
	})
	return journal, err
}

func (s *movementService) RecordSavings(ctx context.Context, clientID int64, amount decimal.Decimal, journalID int64) (*domain.Movement, error) {
	logger.EnterMethod("movementService.RecordSavings", "client_id", clientID, "journal_id", journalID)
	var movement *domain.Movement
	err := s.ledger.run(ctx, "recordSavings", func(ctx context.Context, repos repository.Repositories) error {
		client, journal, err := clientJournal(ctx, repos, clientID, journalID)
		if err != nil {
			return err
		}
		service, err := getOrCreateAccount(ctx, repos, journal.CollectorID, domain.AccountTypeCollectorService)
		if err != nil {
			return err
		}
		account, err := getOrCreateAccount(ctx, repos, client.ID, domain.AccountTypeClient)
		if err != nil {
			return err
		}
		movement, err = transfer(ctx, repos, s.ledger.clock.Now(), domain.TransferRequest{
			SourceAccountID:      service.ID,
			DestinationAccountID: account.ID,
			Amount:               amount,
			Sense:                domain.SenseSavings,
			JournalID:            journal.ID,
			ClientID:             &client.ID,
			Label:                fmt.Sprintf("Savings collected from %s", client.Name),
		})
		if err != nil {
			return err
		}
		return s.enqueueCommission(ctx, repos, movement)
	})
	if err != nil {
		logger.ExitMethodWithError("movementService.RecordSavings", err)
		return nil, err
	}
	logMovements(ctx, movement)
	s.wakeIfEligible(movement)
	logger.ExitMethod("movementService.RecordSavings", "movement_id", movement.ID)
	return movement, nil
}

func (s *movementService) RecordWithdrawal(ctx context.Context, clientID int64, amount decimal.Decimal, journalID int64) (*domain.Movement, error) {
	logger.EnterMethod("movementService.RecordWithdrawal", "client_id", clientID, "journal_id", journalID)
	var (
		movement  *domain.Movement
		collector *domain.Collector
	)
	err := s.ledger.run(ctx, "recordWithdrawal", func(ctx context.Context, repos repository.Repositories) error {
		client, journal, err := clientJournal(ctx, repos, clientID, journalID)
		if err != nil {
			return err
		}
		collector, err = repos.Directory.GetCollector(ctx, journal.CollectorID)
		if err != nil {
			return err
		}
		if collector.MaxWithdrawal.IsPositive() && amount.GreaterThan(collector.MaxWithdrawal) {
			return &domain.MaxWithdrawalError{
				CollectorID: collector.ID,
				Ceiling:     collector.MaxWithdrawal,
				Requested:   amount,
			}
		}
		service, err := getOrCreateAccount(ctx, repos, collector.ID, domain.AccountTypeCollectorService)
		if err != nil {
			return err
		}
		account, err := getOrCreateAccount(ctx, repos, client.ID, domain.AccountTypeClient)
		if err != nil {
			return err
		}
		movement, err = transfer(ctx, repos, s.ledger.clock.Now(), domain.TransferRequest{
			SourceAccountID:      account.ID,
			DestinationAccountID: service.ID,
			Amount:               amount,
			Sense:                domain.SenseWithdrawal,
			JournalID:            journal.ID,
			ClientID:             &client.ID,
			Label:                fmt.Sprintf("Withdrawal paid to %s", client.Name),
		})
		return err
	})
	if err != nil {
		var ceiling *domain.MaxWithdrawalError
		if errors.As(err, &ceiling) {
			s.notifyCeiling(ctx, collector, clientID, ceiling)
		}
		logger.ExitMethodWithError("movementService.RecordWithdrawal", err)
		return nil, err
	}
	logMovements(ctx, movement)
	logger.ExitMethod("movementService.RecordWithdrawal", "movement_id", movement.ID)
	return movement, nil
}

func (s *movementService) RecordRemittance(ctx context.Context, collectorID int64, amount decimal.Decimal, journalID int64, direction RemittanceDirection) (*domain.Movement, error) {
	var sense domain.Sense
	switch direction {
	case RemittanceToAgency:
		sense = domain.SenseRemittance
	case ReplenishmentFromAgency:
		sense = domain.SenseReplenishment
	default:
		return nil, domain.NewValidationError("direction", fmt.Sprintf("unknown direction %q", direction))
	}

	var movement *domain.Movement
	err := s.ledger.run(ctx, "recordRemittance", func(ctx context.Context, repos repository.Repositories) error {
		collector, err := repos.Directory.GetCollector(ctx, collectorID)
		if err != nil {
			return err
		}
		journal, err := repos.Journals.GetByID(ctx, journalID)
		if err != nil {
			return err
		}
		if journal.CollectorID != collector.ID {
			return domain.NewValidationError("journal_id", "journal belongs to another collector")
		}
		service, err := getOrCreateAccount(ctx, repos, collector.ID, domain.AccountTypeCollectorService)
		if err != nil {
			return err
		}
		agency, err := getOrCreateAccount(ctx, repos, collector.AgencyID, domain.AccountTypeAgency)
		if err != nil {
			return err
		}
		req := domain.TransferRequest{
			Amount:    amount,
			Sense:     sense,
			JournalID: journal.ID,
		}
		if sense == domain.SenseRemittance {
			req.SourceAccountID, req.DestinationAccountID = service.ID, agency.ID
			req.Label = "Cash remitted to agency"
		} else {
			req.SourceAccountID, req.DestinationAccountID = agency.ID, service.ID
			req.Label = "Cash replenished by agency"
		}
		movement, err = transfer(ctx, repos, s.ledger.clock.Now(), req)
		return err
	})
	if err != nil {
		return nil, err
	}
	logMovements(ctx, movement)
	return movement, nil
}

func (s *movementService) GetJournalMovements(ctx context.Context, journalID int64) ([]domain.Movement, error) {
	if _, err := s.repos.Journals.GetByID(ctx, journalID); err != nil {
		return nil, err
	}
	return s.repos.Movements.ListByJournal(ctx, journalID)
}

func (s *movementService) GetAccountMovements(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	if _, err := s.repos.Accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repos.Movements.ListByAccount(ctx, accountID)
}

// enqueueCommission writes the outbox entry in the movement's transaction,
// pinning the rule in force now so later rule changes do not reprice it.
func (s *movementService) enqueueCommission(ctx context.Context, repos repository.Repositories, movement *domain.Movement) error {
	if !movement.Sense.CommissionEligible() || movement.ClientID == nil {
		return nil
	}
	client, err := repos.Directory.GetClient(ctx, *movement.ClientID)
	if err != nil {
		return err
	}
	day := domain.DayStart(movement.CreatedAt)
	param, err := resolveRule(ctx, client, func(ctx context.Context, scope domain.CommissionScope, scopeID int64) (*domain.CommissionParameter, error) {
		return repos.Parameters.FindActive(ctx, scope, scopeID, day)
	})
	if err != nil && !errors.Is(err, domain.ErrParameterNotFound) {
		return err
	}
	job := &domain.CommissionJob{
		MovementID: movement.ID,
		NextRunAt:  movement.CreatedAt,
	}
	if param != nil {
		job.ParameterID = &param.ID
	}
	return repos.CommissionJobs.Enqueue(ctx, job)
}

func (s *movementService) wakeIfEligible(movement *domain.Movement) {
	if movement.Sense.CommissionEligible() && movement.ClientID != nil {
		s.signal.Wake()
	}
}

func (s *movementService) notifyCeiling(ctx context.Context, collector *domain.Collector, clientID int64, e *domain.MaxWithdrawalError) {
	if collector == nil {
		return
	}
	s.notifier.Notify(ctx, &domain.Notification{
		CollectorID: collector.ID,
		AgencyID:    collector.AgencyID,
		Kind:        domain.NotificationWithdrawalCeiling,
		Title:       "Withdrawal ceiling exceeded",
		Message: fmt.Sprintf("%s attempted a withdrawal of %s for client %d, above the ceiling of %s.",
			collector.Name, e.Requested.StringFixed(2), clientID, e.Ceiling.StringFixed(2)),
		Attributes: map[string]string{
			"client_id": fmt.Sprint(clientID),
			"requested": e.Requested.StringFixed(2),
			"ceiling":   e.Ceiling.StringFixed(2),
		},
	})
}

// clientJournal loads the client and the journal and checks that the
// journal belongs to the client's collector.
func clientJournal(ctx context.Context, repos repository.Repositories, clientID, journalID int64) (*domain.Client, *domain.Journal, error) {
	client, err := repos.Directory.GetClient(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	journal, err := repos.Journals.GetByID(ctx, journalID)
	if err != nil {
		return nil, nil, err
	}
	if journal.CollectorID != client.CollectorID {
		return nil, nil, domain.NewValidationError("journal_id", "journal belongs to another collector")
	}
	return client, journal, nil
}

func openJournal(ctx context.Context, repos repository.Repositories, collectorID int64, day, now time.Time) (*domain.Journal, error) {
	journal, err := repos.Journals.GetByCollectorAndDate(ctx, collectorID, day)
	if err == nil {
		return journal, nil
	}
	if !errors.Is(err, domain.ErrJournalNotFound) {
		return nil, err
	}
	start, end := domain.DayRange(day)
	journal = &domain.Journal{
		CollectorID: collectorID,
		Reference:   fmt.Sprintf("JRN-%d-%s", collectorID, start.Format("20060102")),
		StartsAt:    start,
		EndsAt:      end,
		Status:      domain.JournalStatusOpen,
		CreatedAt:   now,
	}
	if err := repos.Journals.Create(ctx, journal); err != nil {
		return nil, err
	}
	logger.WithJournal(collectorID, journal.ID).Info("Journal opened", "reference", journal.Reference)
	return journal, nil
}
