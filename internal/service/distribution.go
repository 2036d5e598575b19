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

// InstitutionShare is the part of the net commission kept by the institution
// for collectors past their junior period.
var InstitutionShare = decimal.RequireFromString("0.30")

type DistributionOptions struct {
	JuniorThresholdMonths int
	JuniorFixedReward     decimal.Decimal
	MaxAttempts           int
}

type distributionService struct {
	ledger     *ledger
	commission CommissionService
	opts       DistributionOptions
}

func NewDistributionService(store repository.Store, clk clock.Clock, ledgerOpts LedgerOptions, commission CommissionService, opts DistributionOptions) DistributionService {
	if opts.JuniorThresholdMonths <= 0 {
		opts.JuniorThresholdMonths = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &distributionService{
		ledger:     newLedger(store, clk, ledgerOpts),
		commission: commission,
		opts:       opts,
	}
}

// Plan splits a commission earned at the given time. Junior collectors earn
// a fixed reward capped at the net and the institution keeps the remainder.
// Everyone else leaves the institution its percentage share.
func (s *distributionService) Plan(result domain.CommissionResult, collector *domain.Collector, at time.Time) domain.DistributionPlan {
	net := result.Net()
	plan := domain.DistributionPlan{
		Commission: result.Commission,
		VAT:        result.VAT,
		Net:        net,
	}
	if !net.IsPositive() {
		plan.InstitutionShare = decimal.Zero
		plan.CollectorShare = decimal.Zero
		return plan
	}
	if collector != nil && collector.MonthsOfService(at) < s.opts.JuniorThresholdMonths {
		reward := decimal.Min(s.opts.JuniorFixedReward, net)
		if reward.IsNegative() {
			reward = decimal.Zero
		}
		plan.JuniorReward = true
		plan.CollectorShare = reward
		plan.InstitutionShare = net.Sub(reward)
		return plan
	}
	plan.InstitutionShare = net.Mul(InstitutionShare).Round(2)
	plan.CollectorShare = net.Sub(plan.InstitutionShare)
	return plan
}

func (s *distributionService) DistributeCommission(ctx context.Context, movementID int64) ([]domain.Movement, error) {
	var legs []domain.Movement
	err := s.ledger.run(ctx, "distributeCommission", func(ctx context.Context, repos repository.Repositories) error {
		var err error
		legs, err = s.distribute(ctx, repos, movementID, s.ruleOfDay)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range legs {
		logMovements(ctx, &legs[i])
	}
	return legs, nil
}

// ruleResolver picks the rule that prices a source movement.
type ruleResolver func(ctx context.Context, repos repository.Repositories, client *domain.Client, source *domain.Movement) (*domain.CommissionParameter, error)

// ruleOfDay resolves the currently active rule for the movement's day.
func (s *distributionService) ruleOfDay(ctx context.Context, repos repository.Repositories, client *domain.Client, source *domain.Movement) (*domain.CommissionParameter, error) {
	return s.commission.ResolveWithin(ctx, repos, client, source.CreatedAt)
}

// pinnedRule returns the rule the job captured when its movement was
// recorded.
func pinnedRule(job *domain.CommissionJob) ruleResolver {
	return func(ctx context.Context, repos repository.Repositories, _ *domain.Client, _ *domain.Movement) (*domain.CommissionParameter, error) {
		if job.ParameterID == nil {
			return nil, domain.ErrParameterNotFound
		}
		return repos.Parameters.GetByID(ctx, *job.ParameterID)
	}
}

// distribute posts the commission legs of one eligible movement on the
// caller's transaction. A client without an applicable rule, or a zero
// commission, posts nothing.
func (s *distributionService) distribute(ctx context.Context, repos repository.Repositories, movementID int64, resolve ruleResolver) ([]domain.Movement, error) {
	source, err := repos.Movements.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if !source.Sense.CommissionEligible() || source.ClientID == nil {
		return nil, domain.NewValidationError("movement_id", fmt.Sprintf("movement %d is not commission eligible", movementID))
	}
	client, err := repos.Directory.GetClient(ctx, *source.ClientID)
	if err != nil {
		return nil, err
	}

	param, err := resolve(ctx, repos, client, source)
	if errors.Is(err, domain.ErrParameterNotFound) {
		logger.Debug("No commission rule applies", "movement_id", movementID, "client_id", client.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	result := s.commission.Calculate(source.Amount, param)
	if result.IsZero() {
		return nil, nil
	}

	collector, err := repos.Directory.GetCollector(ctx, client.CollectorID)
	if err != nil && !errors.Is(err, domain.ErrCollectorNotFound) {
		return nil, err
	}
	plan := s.Plan(result, collector, source.CreatedAt)

	now := s.ledger.clock.Now()
	journal, err := distributionJournal(ctx, repos, source, client.CollectorID, now)
	if err != nil {
		return nil, err
	}

	var pending *domain.Account
	if collector != nil {
		pending, err = getOrCreateAccount(ctx, repos, collector.ID, domain.AccountTypeCollectorWaiting)
	} else {
		pending, err = getOrCreateAccount(ctx, repos, 0, domain.AccountTypeSystemWaiting)
	}
	if err != nil {
		return nil, err
	}
	clientAccount, err := repos.Accounts.GetByOwner(ctx, client.ID, domain.AccountTypeClient)
	if err != nil {
		return nil, err
	}
	tax, err := getOrCreateAccount(ctx, repos, 0, domain.AccountTypeSystemTax)
	if err != nil {
		return nil, err
	}
	product, err := getOrCreateAccount(ctx, repos, 0, domain.AccountTypeSystemProduct)
	if err != nil {
		return nil, err
	}

	legs := []domain.TransferRequest{
		{
			SourceAccountID:      clientAccount.ID,
			DestinationAccountID: pending.ID,
			Amount:               plan.Net,
			Sense:                domain.SenseCommissionNet,
			Label:                fmt.Sprintf("Commission on %s", source.Reference),
		},
		{
			SourceAccountID:      clientAccount.ID,
			DestinationAccountID: tax.ID,
			Amount:               plan.VAT,
			Sense:                domain.SenseCommissionTax,
			Label:                fmt.Sprintf("VAT on commission %s", source.Reference),
		},
		{
			SourceAccountID:      pending.ID,
			DestinationAccountID: product.ID,
			Amount:               plan.InstitutionShare,
			Sense:                domain.SenseCommissionInstitution,
			Label:                fmt.Sprintf("Institution share of %s", source.Reference),
		},
	}

	var posted []domain.Movement
	for _, leg := range legs {
		if !leg.Amount.IsPositive() {
			continue
		}
		leg.JournalID = journal.ID
		leg.ClientID = source.ClientID
		m, err := transfer(ctx, repos, now, leg)
		if err != nil {
			return nil, fmt.Errorf("%s leg: %w", leg.Sense, err)
		}
		posted = append(posted, *m)
	}
	return posted, nil
}

// distributionJournal posts into the source movement's journal while it is
// open, and into the collector's journal of the day once it has closed.
func distributionJournal(ctx context.Context, repos repository.Repositories, source *domain.Movement, collectorID int64, now time.Time) (*domain.Journal, error) {
	journal, err := repos.Journals.GetByID(ctx, source.JournalID)
	if err != nil {
		return nil, err
	}
	if !journal.IsClosed() {
		return journal, nil
	}
	journal, err = openJournal(ctx, repos, collectorID, now, now)
	if err != nil {
		return nil, err
	}
	if journal.IsClosed() {
		return nil, domain.ErrJournalClosed
	}
	return journal, nil
}

// ProcessPendingJobs drains due outbox entries one transaction at a time so
// that the posted legs and the DONE mark commit together.
func (s *distributionService) ProcessPendingJobs(ctx context.Context, limit int) (ProcessStats, error) {
	var stats ProcessStats
	jobs := s.ledger.tx
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		now := s.ledger.clock.Now()
		var (
			job  *domain.CommissionJob
			legs []domain.Movement
		)
		err := jobs.WithinTx(ctx, repository.TxOptions{Timeout: s.ledger.opts.TxTimeout}, func(ctx context.Context, repos repository.Repositories) error {
			due, err := repos.CommissionJobs.ClaimDue(ctx, now, 1)
			if err != nil || len(due) == 0 {
				return err
			}
			job = &due[0]
			legs, err = s.distribute(ctx, repos, job.MovementID, pinnedRule(job))
			if err != nil {
				return err
			}
			return repos.CommissionJobs.MarkDone(ctx, job.ID)
		})
		if job == nil {
			return stats, err
		}
		if err == nil {
			stats.Done++
			for i := range legs {
				logMovements(ctx, &legs[i])
			}
			continue
		}
		if s.recordFailure(ctx, job, now, err) {
			stats.Failed++
		} else {
			stats.Retried++
		}
	}
	return stats, nil
}

// recordFailure schedules the next attempt, or parks the job as FAILED once
// its attempts are spent. It reports whether the job was parked.
func (s *distributionService) recordFailure(ctx context.Context, job *domain.CommissionJob, now time.Time, cause error) bool {
	attempts := job.Attempts + 1
	log := logger.WithJob("commission-distribution").With("job_id", job.ID, "movement_id", job.MovementID, "attempt", attempts)
	err := s.ledger.tx.WithinTx(ctx, repository.TxOptions{Timeout: s.ledger.opts.TxTimeout}, func(ctx context.Context, repos repository.Repositories) error {
		if attempts >= s.opts.MaxAttempts {
			return repos.CommissionJobs.MarkFailed(ctx, job.ID, attempts, cause.Error())
		}
		return repos.CommissionJobs.MarkRetry(ctx, job.ID, attempts, now.Add(retryBackoff(attempts)), cause.Error())
	})
	if err != nil {
		log.Error("Failed to record commission job failure", "error", err, "cause", cause)
	}
	if attempts >= s.opts.MaxAttempts {
		log.Error("Commission distribution failed permanently", "error", cause)
		return true
	}
	log.Warn("Commission distribution failed, will retry", "error", cause)
	return false
}

// retryBackoff grows quadratically from thirty seconds.
func retryBackoff(attempts int) time.Duration {
	return time.Duration(attempts*attempts) * 30 * time.Second
}
