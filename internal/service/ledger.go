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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerOptions bounds every ledger unit of work.
type LedgerOptions struct {
	TxTimeout       time.Duration
	ConflictRetries int
}

type ledger struct {
	tx    repository.TxManager
	clock clock.Clock
	opts  LedgerOptions
}

func newLedger(tx repository.TxManager, clk clock.Clock, opts LedgerOptions) *ledger {
	if clk == nil {
		clk = clock.System()
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = repository.DefaultTxTimeout
	}
	if opts.ConflictRetries <= 0 {
		opts.ConflictRetries = 1
	}
	return &ledger{tx: tx, clock: clk, opts: opts}
}

// run executes fn in a transaction and replays it when an optimistic
// balance write loses a race. fn must not leak state between attempts.
func (l *ledger) run(ctx context.Context, operation string, fn func(ctx context.Context, repos repository.Repositories) error) error {
	var err error
	for attempt := 1; attempt <= l.opts.ConflictRetries; attempt++ {
		err = l.tx.WithinTx(ctx, repository.TxOptions{Timeout: l.opts.TxTimeout}, fn)
		if !errors.Is(err, domain.ErrVersionConflict) {
			break
		}
		logger.Warn("Version conflict, retrying ledger operation",
			"operation", operation, "attempt", attempt, "max_attempts", l.opts.ConflictRetries)
	}
	return wrapTxError(operation, err)
}

func (l *ledger) read(ctx context.Context, operation string, fn func(ctx context.Context, repos repository.Repositories) error) error {
	err := l.tx.WithinTx(ctx, repository.TxOptions{Timeout: l.opts.TxTimeout, ReadOnly: true}, fn)
	return wrapTxError(operation, err)
}

// wrapTxError leaves domain failures untouched so callers can map them.
func wrapTxError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsValidation(err) || domain.IsNotFound(err) || domain.IsConflict(err) || domain.IsBusinessRule(err) {
		return err
	}
	return &domain.TransactionError{Operation: operation, Cause: err}
}

// transfer is the single primitive every movement goes through. It checks
// funds on the side the sense decreases, writes both balances under
// optimistic locking and records the movement, all on the caller's
// transaction.
func transfer(ctx context.Context, repos repository.Repositories, now time.Time, req domain.TransferRequest) (*domain.Movement, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if err := checkScale("amount", req.Amount); err != nil {
		return nil, err
	}
	if req.SourceAccountID == req.DestinationAccountID {
		return nil, domain.NewValidationError("destination_account_id", "source and destination must differ")
	}
	srcDelta, dstDelta, err := req.Sense.Deltas(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, req.Sense)
	}

	journal, err := repos.Journals.GetByID(ctx, req.JournalID)
	if err != nil {
		return nil, err
	}
	if journal.IsClosed() {
		return nil, domain.ErrJournalClosed
	}

	source, err := repos.Accounts.GetByID(ctx, req.SourceAccountID)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	destination, err := repos.Accounts.GetByID(ctx, req.DestinationAccountID)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	if !req.BypassBalanceCheck {
		if err := ensureFunds(source, srcDelta); err != nil {
			return nil, err
		}
		if err := ensureFunds(destination, dstDelta); err != nil {
			return nil, err
		}
	}

	if err := repos.Accounts.UpdateBalance(ctx, source.ID, source.Balance.Add(srcDelta), source.Version); err != nil {
		return nil, err
	}
	if err := repos.Accounts.UpdateBalance(ctx, destination.ID, destination.Balance.Add(dstDelta), destination.Version); err != nil {
		return nil, err
	}

	movement := &domain.Movement{
		Reference:            uuid.NewString(),
		Amount:               req.Amount,
		Sense:                req.Sense,
		SourceAccountID:      source.ID,
		DestinationAccountID: destination.ID,
		JournalID:            journal.ID,
		ClientID:             req.ClientID,
		Label:                req.Label,
		CreatedAt:            now,
	}
	if err := repos.Movements.Create(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

// checkScale rejects amounts finer than the cent, which storage would round.
func checkScale(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return domain.NewValidationError(field, "must have at most two decimal places")
	}
	return nil
}

func ensureFunds(account *domain.Account, delta decimal.Decimal) error {
	if !delta.IsNegative() || account.AllowsNegative {
		return nil
	}
	if account.Balance.Add(delta).IsNegative() {
		return &domain.InsufficientBalanceError{
			AccountID: account.ID,
			Balance:   account.Balance,
			Requested: delta.Neg(),
		}
	}
	return nil
}

// logMovements writes the audit line of each committed movement.
func logMovements(ctx context.Context, movements ...*domain.Movement) {
	for _, m := range movements {
		if m == nil {
			continue
		}
		logger.LedgerMovement(ctx, m.ID, string(m.Sense), m.Amount.StringFixed(2),
			"journal_id", m.JournalID, "source", m.SourceAccountID, "destination", m.DestinationAccountID)
	}
}
