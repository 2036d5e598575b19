package postgres

import (
	"context"
	"fmt"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) repository.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, number, name, balance, owner_id, account_type, allows_negative, version, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	logger.EnterMethod("accountRepository.Create", "ownerID", a.OwnerID, "type", a.Type)

	query := `INSERT INTO accounts (number, name, balance, owner_id, account_type, allows_negative, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7) RETURNING id`
	now := time.Now().UTC()
	logger.DatabaseCall("INSERT", "accounts", "number", a.Number)
	err := r.db.QueryRowContext(ctx, query, a.Number, a.Name, a.Balance, a.OwnerID, a.Type, a.AllowsNegative, now).Scan(&a.ID)
	logger.DatabaseResult("INSERT", 1, err, "accountID", a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrAccountNumberTaken
		}
		logger.ExitMethodWithError("accountRepository.Create", err, "number", a.Number)
		return err
	}
	a.Version = 0
	a.CreatedAt = now
	a.UpdatedAt = now
	logger.ExitMethod("accountRepository.Create", "accountID", a.ID)
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	logger.DatabaseCall("SELECT", "accounts", "accountID", id)
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, domain.ErrAccountNotFound)
	}
	return a, nil
}

func (r *accountRepository) GetByOwner(ctx context.Context, ownerID int64, accountType domain.AccountType) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 AND account_type = $2`
	logger.DatabaseCall("SELECT", "accounts", "ownerID", ownerID, "type", accountType)
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, ownerID, accountType))
	if err != nil {
		return nil, notFound(err, domain.ErrAccountNotFound)
	}
	return a, nil
}

func (r *accountRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, expectedVersion int64) error {
	query := `UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
	          WHERE id = $3 AND version = $4`
	logger.DatabaseCall("UPDATE", "accounts", "accountID", id, "expectedVersion", expectedVersion)
	result, err := r.db.ExecContext(ctx, query, balance, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "accountID", id)
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "accountID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) CreateSnapshot(ctx context.Context, s *domain.BalanceSnapshot) error {
	query := `INSERT INTO balance_snapshots (account_id, balance, version, taken_on)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (account_id, taken_on) DO UPDATE SET balance = EXCLUDED.balance, version = EXCLUDED.version
	          RETURNING id`
	return r.db.QueryRowContext(ctx, query, s.AccountID, s.Balance, s.Version, s.TakenOn).Scan(&s.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Number, &a.Name, &a.Balance, &a.OwnerID, &a.Type,
		&a.AllowsNegative, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
