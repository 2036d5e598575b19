package postgres

import (
	"context"
	"database/sql"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"
)

type journalRepository struct {
	db DBTX
}

func NewJournalRepository(db DBTX) repository.JournalRepository {
	return &journalRepository{db: db}
}

const journalColumns = `id, collector_id, reference, starts_at, ends_at, status, closed_at, created_at`

func (r *journalRepository) Create(ctx context.Context, j *domain.Journal) error {
	query := `INSERT INTO journals (collector_id, reference, starts_at, ends_at, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	logger.DatabaseCall("INSERT", "journals", "collectorID", j.CollectorID, "startsAt", j.StartsAt)
	err := r.db.QueryRowContext(ctx, query, j.CollectorID, j.Reference, j.StartsAt, j.EndsAt, j.Status, j.CreatedAt).Scan(&j.ID)
	logger.DatabaseResult("INSERT", 1, err, "journalID", j.ID)
	return err
}

func (r *journalRepository) GetByID(ctx context.Context, id int64) (*domain.Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM journals WHERE id = $1`
	j, err := scanJournal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, domain.ErrJournalNotFound)
	}
	return j, nil
}

func (r *journalRepository) GetByCollectorAndDate(ctx context.Context, collectorID int64, day time.Time) (*domain.Journal, error) {
	start, end := domain.DayRange(day)
	query := `SELECT ` + journalColumns + ` FROM journals
	          WHERE collector_id = $1 AND starts_at >= $2 AND starts_at < $3`
	logger.DatabaseCall("SELECT", "journals", "collectorID", collectorID, "day", start)
	j, err := scanJournal(r.db.QueryRowContext(ctx, query, collectorID, start, end))
	if err != nil {
		return nil, notFound(err, domain.ErrJournalNotFound)
	}
	return j, nil
}

func (r *journalRepository) Close(ctx context.Context, id int64, closedAt time.Time) error {
	query := `UPDATE journals SET status = $1, closed_at = $2 WHERE id = $3 AND status = $4`
	logger.DatabaseCall("UPDATE", "journals", "journalID", id)
	result, err := r.db.ExecContext(ctx, query, domain.JournalStatusClosed, closedAt, id, domain.JournalStatusOpen)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "journalID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrJournalClosed
	}
	return nil
}

func (r *journalRepository) ListOpenBefore(ctx context.Context, day time.Time) ([]domain.Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM journals WHERE status = $1 AND starts_at < $2 ORDER BY starts_at`
	rows, err := r.db.QueryContext(ctx, query, domain.JournalStatusOpen, domain.DayStart(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var journals []domain.Journal
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		journals = append(journals, *j)
	}
	return journals, rows.Err()
}

func scanJournal(row rowScanner) (*domain.Journal, error) {
	var j domain.Journal
	var closedAt sql.NullTime
	if err := row.Scan(&j.ID, &j.CollectorID, &j.Reference, &j.StartsAt, &j.EndsAt, &j.Status, &closedAt, &j.CreatedAt); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		j.ClosedAt = &t
	}
	return &j, nil
}
