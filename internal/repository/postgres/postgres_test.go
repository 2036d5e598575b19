package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestAccountRepository_UpdateBalance(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateBalance(ctx, 7, decimal.NewFromInt(6000), 3)
		assert.NoError(t, err)
	})

	t.Run("Stale version", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET balance").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateBalance(ctx, 7, decimal.NewFromInt(6000), 2)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		a := &domain.Account{Number: "CLI00100000003", OwnerID: 3, Type: domain.AccountTypeClient, Balance: decimal.Zero}
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(a.Number, a.Name, sqlmock.AnyArg(), a.OwnerID, a.Type, a.AllowsNegative, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		require.NoError(t, repo.Create(ctx, a))
		assert.Equal(t, int64(11), a.ID)
		assert.Equal(t, int64(0), a.Version)
	})

	t.Run("Number taken", func(t *testing.T) {
		a := &domain.Account{Number: "CLI00100000003", OwnerID: 4, Type: domain.AccountTypeClient}
		mock.ExpectQuery("INSERT INTO accounts").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, a)
		assert.ErrorIs(t, err, domain.ErrAccountNumberTaken)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	columns := []string{"id", "number", "name", "balance", "owner_id", "account_type", "allows_negative", "version", "created_at", "updated_at"}

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id = \\$1 AND account_type = \\$2").
			WithArgs(int64(2), domain.AccountTypeCollectorService).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(5, "SRV00100000002", "Service Awa", "-6000.00", 2, "COLLECTOR_SERVICE", true, 4, now, now))

		a, err := repo.GetByOwner(ctx, 2, domain.AccountTypeCollectorService)
		require.NoError(t, err)
		assert.Equal(t, "-6000.00", a.Balance.StringFixed(2))
		assert.Equal(t, domain.AccountTypeCollectorService, a.Type)
		assert.True(t, a.AllowsNegative)
		assert.Equal(t, int64(4), a.Version)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByOwner(ctx, 9, domain.AccountTypeClient)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestJournalRepository_Close(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJournalRepository(db)
	ctx := context.Background()
	closedAt := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	columns := []string{"id", "collector_id", "reference", "starts_at", "ends_at", "status", "closed_at", "created_at"}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE journals SET status").
			WithArgs(domain.JournalStatusClosed, closedAt, int64(1), domain.JournalStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Close(ctx, 1, closedAt))
	})

	t.Run("Already closed", func(t *testing.T) {
		mock.ExpectExec("UPDATE journals SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM journals WHERE id = \\$1").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, 2, "JRN-2-20240115", closedAt, closedAt, "CLOSED", closedAt, closedAt))

		assert.ErrorIs(t, repo.Close(ctx, 1, closedAt), domain.ErrJournalClosed)
	})

	t.Run("Missing journal", func(t *testing.T) {
		mock.ExpectExec("UPDATE journals SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM journals WHERE id = \\$1").
			WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, repo.Close(ctx, 1, closedAt), domain.ErrJournalNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMovementRepository(db)
	ctx := context.Background()

	clientID := int64(3)
	m := &domain.Movement{
		Reference:            "2f1c",
		Amount:               decimal.NewFromInt(5000),
		Sense:                domain.SenseSavings,
		SourceAccountID:      1,
		DestinationAccountID: 2,
		JournalID:            4,
		ClientID:             &clientID,
		Label:                "Savings",
	}
	mock.ExpectQuery("INSERT INTO movements").
		WithArgs(m.Reference, sqlmock.AnyArg(), m.Sense, m.SourceAccountID, m.DestinationAccountID, m.JournalID, clientID, m.Label, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	require.NoError(t, repo.Create(ctx, m))
	assert.Equal(t, int64(42), m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettlementRepository(db)
	ctx := context.Background()

	s := &domain.Settlement{
		CollectorID:     2,
		JournalID:       1,
		Date:            time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC),
		AmountCollected: decimal.NewFromInt(6000),
		AmountRemitted:  decimal.NewFromInt(6000),
		Outcome:         domain.SettlementNormal,
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO settlements").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

		require.NoError(t, repo.Create(ctx, s))
		assert.Equal(t, int64(9), s.ID)
	})

	t.Run("Duplicate collector and date", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO settlements").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "settlements_collector_id_settlement_date_key"})

		err := repo.Create(ctx, s)
		assert.ErrorIs(t, err, domain.ErrDuplicateSettlement)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommissionJobRepository_ClaimDue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCommissionJobRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM commission_jobs (.+) FOR UPDATE SKIP LOCKED").
		WithArgs(domain.CommissionJobPending, now, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "movement_id", "parameter_id", "status", "attempts", "next_run_at", "last_error", "created_at", "updated_at"}).
			AddRow(1, 42, 7, "PENDING", 0, now, "", now, now).
			AddRow(2, 43, nil, "PENDING", 1, now, "client cannot cover", now, now))

	jobs, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(42), jobs[0].MovementID)
	require.NotNil(t, jobs[0].ParameterID)
	assert.Equal(t, int64(7), *jobs[0].ParameterID)
	assert.Nil(t, jobs[1].ParameterID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommissionJobRepository_Enqueue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCommissionJobRepository(db)
	ctx := context.Background()
	runAt := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

	parameterID := int64(7)
	job := &domain.CommissionJob{MovementID: 42, ParameterID: &parameterID, NextRunAt: runAt}
	mock.ExpectQuery("INSERT INTO commission_jobs").
		WithArgs(int64(42), parameterID, domain.CommissionJobPending, runAt, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	require.NoError(t, repo.Enqueue(ctx, job))
	assert.Equal(t, int64(5), job.ID)
	assert.Equal(t, domain.CommissionJobPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, repository.TxOptions{Timeout: time.Second}, func(ctx context.Context, repos repository.Repositories) error {
			return repos.Accounts.UpdateBalance(ctx, 1, decimal.NewFromInt(10), 0)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback on error", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, repos repository.Repositories) error {
			return repos.Accounts.UpdateBalance(ctx, 1, decimal.NewFromInt(10), 0)
		})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Begin failure", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

		called := false
		err := store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, repos repository.Repositories) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
}
