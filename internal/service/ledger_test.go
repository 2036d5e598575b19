package service

import (
	"context"
	"errors"
	"testing"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferSenseEffects(t *testing.T) {
	f := newFixture(t)
	service, err := f.accounts.GetOrCreate(f.ctx, f.collector.ID, domain.AccountTypeCollectorService)
	require.NoError(t, err)
	agency, err := f.accounts.GetOrCreate(f.ctx, f.agency.ID, domain.AccountTypeAgency)
	require.NoError(t, err)

	t.Run("Debit sense takes from the source", func(t *testing.T) {
		_, err := f.movements.Transfer(f.ctx, domain.TransferRequest{
			SourceAccountID:      service.ID,
			DestinationAccountID: agency.ID,
			Amount:               dec("100"),
			Sense:                domain.SenseDebit,
			JournalID:            f.journal.ID,
		})
		require.NoError(t, err)
		requireDecimal(t, "-100", f.balance(f.collector.ID, domain.AccountTypeCollectorService))
		requireDecimal(t, "100", f.balance(f.agency.ID, domain.AccountTypeAgency))
	})

	t.Run("Credit sense gives to the source", func(t *testing.T) {
		_, err := f.movements.Transfer(f.ctx, domain.TransferRequest{
			SourceAccountID:      service.ID,
			DestinationAccountID: agency.ID,
			Amount:               dec("100"),
			Sense:                domain.SenseCredit,
			JournalID:            f.journal.ID,
		})
		require.NoError(t, err)
		requireDecimal(t, "0", f.balance(f.collector.ID, domain.AccountTypeCollectorService))
		requireDecimal(t, "0", f.balance(f.agency.ID, domain.AccountTypeAgency))
	})
}

func TestTransferRejections(t *testing.T) {
	f := newFixture(t)
	client, err := f.accounts.GetOrCreate(f.ctx, f.client.ID, domain.AccountTypeClient)
	require.NoError(t, err)
	tax, err := f.accounts.GetOrCreate(f.ctx, 0, domain.AccountTypeSystemTax)
	require.NoError(t, err)

	base := domain.TransferRequest{
		SourceAccountID:      client.ID,
		DestinationAccountID: tax.ID,
		Amount:               dec("10"),
		Sense:                domain.SenseDebit,
		JournalID:            f.journal.ID,
	}

	t.Run("Insufficient balance", func(t *testing.T) {
		_, err := f.movements.Transfer(f.ctx, base)
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		var ibe *domain.InsufficientBalanceError
		require.ErrorAs(t, err, &ibe)
		assert.Equal(t, client.ID, ibe.AccountID)
		requireDecimal(t, "10", ibe.Requested)
	})

	t.Run("Bypass skips the guard", func(t *testing.T) {
		req := base
		req.BypassBalanceCheck = true
		_, err := f.movements.Transfer(f.ctx, req)
		require.NoError(t, err)
		requireDecimal(t, "-10", f.balance(f.client.ID, domain.AccountTypeClient))
	})

	t.Run("Non-positive amount", func(t *testing.T) {
		req := base
		req.Amount = dec("0")
		_, err := f.movements.Transfer(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("Same account", func(t *testing.T) {
		req := base
		req.DestinationAccountID = req.SourceAccountID
		_, err := f.movements.Transfer(f.ctx, req)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Unknown sense", func(t *testing.T) {
		req := base
		req.Sense = "GIFT"
		_, err := f.movements.Transfer(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrUnknownSense)
	})

	t.Run("Missing journal", func(t *testing.T) {
		req := base
		req.JournalID = 999
		_, err := f.movements.Transfer(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrJournalNotFound)
	})
}

// conflictingTx fails the first attempts with a version conflict.
type conflictingTx struct {
	inner     repository.TxManager
	conflicts int
	calls     int
}

func (c *conflictingTx) WithinTx(ctx context.Context, opts repository.TxOptions, fn func(ctx context.Context, repos repository.Repositories) error) error {
	c.calls++
	if c.calls <= c.conflicts {
		return domain.ErrVersionConflict
	}
	return c.inner.WithinTx(ctx, opts, fn)
}

func TestLedgerRetriesVersionConflicts(t *testing.T) {
	f := newFixture(t)

	t.Run("Succeeds within budget", func(t *testing.T) {
		tx := &conflictingTx{inner: f.store, conflicts: 2}
		l := newLedger(tx, f.clock, LedgerOptions{ConflictRetries: 3})
		ran := 0
		err := l.run(f.ctx, "test", func(ctx context.Context, repos repository.Repositories) error {
			ran++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, tx.calls)
		assert.Equal(t, 1, ran)
	})

	t.Run("Gives up after budget", func(t *testing.T) {
		tx := &conflictingTx{inner: f.store, conflicts: 5}
		l := newLedger(tx, f.clock, LedgerOptions{ConflictRetries: 3})
		err := l.run(f.ctx, "test", func(ctx context.Context, repos repository.Repositories) error { return nil })
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.Equal(t, 3, tx.calls)
	})

	t.Run("Other errors are not retried", func(t *testing.T) {
		l := newLedger(f.store, f.clock, LedgerOptions{ConflictRetries: 3})
		ran := 0
		boom := errors.New("boom")
		err := l.run(f.ctx, "test", func(ctx context.Context, repos repository.Repositories) error {
			ran++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		var txErr *domain.TransactionError
		assert.ErrorAs(t, err, &txErr)
		assert.Equal(t, 1, ran)
	})
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newFixture(t)
	account, err := f.accounts.GetOrCreate(f.ctx, f.client.ID, domain.AccountTypeClient)
	require.NoError(t, err)
	stale := *account

	require.NoError(t, f.accounts.SetBalance(f.ctx, account, dec("50")))
	assert.Equal(t, stale.Version+1, account.Version)

	err = f.accounts.SetBalance(f.ctx, &stale, dec("70"))
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	requireDecimal(t, "50", f.balance(f.client.ID, domain.AccountTypeClient))

	movements, err := f.movements.GetAccountMovements(f.ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, movements, "administrative writes bypass the ledger")
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.save("1000")
	before, err := f.store.Repos().Movements.ListByJournal(f.ctx, f.journal.ID)
	require.NoError(t, err)

	_, err = f.movements.RecordWithdrawal(f.ctx, f.client.ID, dec("5000"), f.journal.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	after, err := f.store.Repos().Movements.ListByJournal(f.ctx, f.journal.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	requireDecimal(t, "1000", f.balance(f.client.ID, domain.AccountTypeClient))
	requireDecimal(t, "-1000", f.balance(f.collector.ID, domain.AccountTypeCollectorService))
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	f := newFixture(t)
	f.save("100")

	_, err := f.movements.RecordSavings(f.ctx, f.client.ID, dec("10.005"), f.journal.ID)
	assert.True(t, domain.IsValidation(err), "got %v", err)
	requireDecimal(t, "100", f.balance(f.client.ID, domain.AccountTypeClient))
	requireDecimal(t, "-100", f.balance(f.collector.ID, domain.AccountTypeCollectorService))

	_, err = f.movements.RecordSavings(f.ctx, f.client.ID, dec("10.50"), f.journal.ID)
	assert.NoError(t, err, "trailing zeros are whole cents")

	_, err = f.settlement.Settle(f.ctx, settleRequest(f, "110.505"))
	assert.True(t, domain.IsValidation(err), "got %v", err)
}
