package postgres

import (
	"context"
	"database/sql"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"
)

type movementRepository struct {
	db DBTX
}

func NewMovementRepository(db DBTX) repository.MovementRepository {
	return &movementRepository{db: db}
}

const movementColumns = `id, reference, amount, sense, source_account_id, destination_account_id, journal_id, client_id, label, created_at`

func (r *movementRepository) Create(ctx context.Context, m *domain.Movement) error {
	query := `INSERT INTO movements (reference, amount, sense, source_account_id, destination_account_id, journal_id, client_id, label, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	logger.DatabaseCall("INSERT", "movements", "journalID", m.JournalID, "sense", m.Sense)
	err := r.db.QueryRowContext(ctx, query, m.Reference, m.Amount, m.Sense, m.SourceAccountID,
		m.DestinationAccountID, m.JournalID, m.ClientID, m.Label, m.CreatedAt).Scan(&m.ID)
	logger.DatabaseResult("INSERT", 1, err, "movementID", m.ID)
	return err
}

func (r *movementRepository) GetByID(ctx context.Context, id int64) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1`
	m, err := scanMovement(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, domain.ErrMovementNotFound)
	}
	return m, nil
}

func (r *movementRepository) ListByJournal(ctx context.Context, journalID int64) ([]domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE journal_id = $1 ORDER BY id`
	return r.list(ctx, query, journalID)
}

func (r *movementRepository) ListByAccount(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements
	          WHERE source_account_id = $1 OR destination_account_id = $1 ORDER BY id`
	return r.list(ctx, query, accountID)
}

func (r *movementRepository) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	var count int
	query := `SELECT count(*) FROM movements WHERE source_account_id = $1 OR destination_account_id = $1`
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&count)
	return count, err
}

func (r *movementRepository) list(ctx context.Context, query string, arg int64) ([]domain.Movement, error) {
	logger.DatabaseCall("SELECT", "movements", "arg", arg)
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	logger.DatabaseResult("SELECT", int64(len(movements)), rows.Err())
	return movements, rows.Err()
}

func scanMovement(row rowScanner) (*domain.Movement, error) {
	var m domain.Movement
	var clientID sql.NullInt64
	if err := row.Scan(&m.ID, &m.Reference, &m.Amount, &m.Sense, &m.SourceAccountID,
		&m.DestinationAccountID, &m.JournalID, &clientID, &m.Label, &m.CreatedAt); err != nil {
		return nil, err
	}
	if clientID.Valid {
		id := clientID.Int64
		m.ClientID = &id
	}
	return &m, nil
}
