package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"
)

type commissionParameterRepository struct {
	db DBTX
}

func NewCommissionParameterRepository(db DBTX) repository.CommissionParameterRepository {
	return &commissionParameterRepository{db: db}
}

const parameterColumns = `id, scope, scope_id, commission_type, value, tiers, valid_from, valid_to, active, created_at`

func (r *commissionParameterRepository) Create(ctx context.Context, p *domain.CommissionParameter) error {
	logger.EnterMethod("commissionParameterRepository.Create", "scope", p.Scope, "scopeID", p.ScopeID, "type", p.Type)

	tiers, err := json.Marshal(p.Tiers)
	if err != nil {
		logger.ExitMethodWithError("commissionParameterRepository.Create", err, "reason", "failed to marshal tiers")
		return err
	}

	query := `INSERT INTO commission_parameters (scope, scope_id, commission_type, value, tiers, valid_from, valid_to, active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	logger.DatabaseCall("INSERT", "commission_parameters", "scope", p.Scope, "scopeID", p.ScopeID)
	err = r.db.QueryRowContext(ctx, query, p.Scope, p.ScopeID, p.Type, p.Value, tiers, p.ValidFrom, p.ValidTo, p.Active, p.CreatedAt).Scan(&p.ID)
	logger.DatabaseResult("INSERT", 1, err, "parameterID", p.ID)
	if err != nil {
		logger.ExitMethodWithError("commissionParameterRepository.Create", err)
		return err
	}
	logger.ExitMethod("commissionParameterRepository.Create", "parameterID", p.ID)
	return nil
}

func (r *commissionParameterRepository) GetByID(ctx context.Context, id int64) (*domain.CommissionParameter, error) {
	query := `SELECT ` + parameterColumns + ` FROM commission_parameters WHERE id = $1`
	p, err := scanParameter(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, domain.ErrParameterNotFound)
	}
	return p, nil
}

func (r *commissionParameterRepository) FindActive(ctx context.Context, scope domain.CommissionScope, scopeID int64, day time.Time) (*domain.CommissionParameter, error) {
	query := `SELECT ` + parameterColumns + ` FROM commission_parameters
	          WHERE scope = $1 AND scope_id = $2 AND active
	            AND valid_from <= $3 AND (valid_to IS NULL OR valid_to > $3)
	          ORDER BY valid_from DESC LIMIT 1`
	logger.DatabaseCall("SELECT", "commission_parameters", "scope", scope, "scopeID", scopeID)
	p, err := scanParameter(r.db.QueryRowContext(ctx, query, scope, scopeID, domain.DayStart(day)))
	if err != nil {
		return nil, notFound(err, domain.ErrParameterNotFound)
	}
	return p, nil
}

func (r *commissionParameterRepository) Deactivate(ctx context.Context, id int64, validTo time.Time) error {
	query := `UPDATE commission_parameters SET active = FALSE, valid_to = $1 WHERE id = $2 AND active`
	result, err := r.db.ExecContext(ctx, query, validTo, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrParameterNotFound
	}
	return nil
}

func (r *commissionParameterRepository) ListByScope(ctx context.Context, scope domain.CommissionScope, scopeID int64) ([]domain.CommissionParameter, error) {
	query := `SELECT ` + parameterColumns + ` FROM commission_parameters WHERE scope = $1 AND scope_id = $2 ORDER BY valid_from, id`
	rows, err := r.db.QueryContext(ctx, query, scope, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []domain.CommissionParameter
	for rows.Next() {
		p, err := scanParameter(rows)
		if err != nil {
			return nil, err
		}
		params = append(params, *p)
	}
	return params, rows.Err()
}

func scanParameter(row rowScanner) (*domain.CommissionParameter, error) {
	var p domain.CommissionParameter
	var tiers []byte
	var validTo sql.NullTime
	if err := row.Scan(&p.ID, &p.Scope, &p.ScopeID, &p.Type, &p.Value, &tiers, &p.ValidFrom, &validTo, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &p.Tiers); err != nil {
			return nil, fmt.Errorf("failed to decode tiers of parameter %d: %w", p.ID, err)
		}
	}
	if validTo.Valid {
		t := validTo.Time
		p.ValidTo = &t
	}
	return &p, nil
}

type commissionJobRepository struct {
	db DBTX
}

func NewCommissionJobRepository(db DBTX) repository.CommissionJobRepository {
	return &commissionJobRepository{db: db}
}

func (r *commissionJobRepository) Enqueue(ctx context.Context, job *domain.CommissionJob) error {
	query := `INSERT INTO commission_jobs (movement_id, parameter_id, status, attempts, next_run_at, created_at, updated_at)
	          VALUES ($1, $2, $3, 0, $4, $5, $5) RETURNING id`
	now := time.Now().UTC()
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	job.Status = domain.CommissionJobPending
	logger.DatabaseCall("INSERT", "commission_jobs", "movementID", job.MovementID)
	err := r.db.QueryRowContext(ctx, query, job.MovementID, job.ParameterID, job.Status, job.NextRunAt, now).Scan(&job.ID)
	logger.DatabaseResult("INSERT", 1, err, "jobID", job.ID)
	return err
}

// ClaimDue locks due rows so that concurrent workers skip each other's batch.
// The lock lives as long as the surrounding transaction.
func (r *commissionJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.CommissionJob, error) {
	query := `SELECT id, movement_id, parameter_id, status, attempts, next_run_at, last_error, created_at, updated_at
	          FROM commission_jobs
	          WHERE status = $1 AND next_run_at <= $2
	          ORDER BY next_run_at
	          LIMIT $3
	          FOR UPDATE SKIP LOCKED`
	rows, err := r.db.QueryContext(ctx, query, domain.CommissionJobPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.CommissionJob
	for rows.Next() {
		var j domain.CommissionJob
		var parameterID sql.NullInt64
		if err := rows.Scan(&j.ID, &j.MovementID, &parameterID, &j.Status, &j.Attempts, &j.NextRunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		if parameterID.Valid {
			id := parameterID.Int64
			j.ParameterID = &id
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *commissionJobRepository) MarkDone(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE commission_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		domain.CommissionJobDone, time.Now().UTC(), id)
	return err
}

func (r *commissionJobRepository) MarkRetry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE commission_jobs SET attempts = $1, next_run_at = $2, last_error = $3, updated_at = $4 WHERE id = $5`,
		attempts, nextRunAt, lastError, time.Now().UTC(), id)
	return err
}

func (r *commissionJobRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE commission_jobs SET status = $1, attempts = $2, last_error = $3, updated_at = $4 WHERE id = $5`,
		domain.CommissionJobFailed, attempts, lastError, time.Now().UTC(), id)
	return err
}
