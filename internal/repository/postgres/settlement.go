package postgres

import (
	"context"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"
)

type settlementRepository struct {
	db DBTX
}

func NewSettlementRepository(db DBTX) repository.SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	logger.EnterMethod("settlementRepository.Create", "collectorID", s.CollectorID, "outcome", s.Outcome)

	query := `INSERT INTO settlements (collector_id, journal_id, settlement_date, amount_collected, amount_remitted,
	              surplus, shortfall, outcome, authorization_number, comment, created_by, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	logger.DatabaseCall("INSERT", "settlements", "collectorID", s.CollectorID, "date", s.Date)
	err := r.db.QueryRowContext(ctx, query, s.CollectorID, s.JournalID, domain.DayStart(s.Date), s.AmountCollected,
		s.AmountRemitted, s.Surplus, s.Shortfall, s.Outcome, s.AuthorizationNumber, s.Comment, s.CreatedBy, s.CreatedAt).Scan(&s.ID)
	logger.DatabaseResult("INSERT", 1, err, "settlementID", s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrDuplicateSettlement
		}
		logger.ExitMethodWithError("settlementRepository.Create", err)
		return err
	}
	logger.ExitMethod("settlementRepository.Create", "settlementID", s.ID)
	return nil
}

func (r *settlementRepository) GetByCollectorAndDate(ctx context.Context, collectorID int64, day time.Time) (*domain.Settlement, error) {
	query := `SELECT id, collector_id, journal_id, settlement_date, amount_collected, amount_remitted, surplus, shortfall,
	                 outcome, authorization_number, comment, created_by, created_at
	          FROM settlements WHERE collector_id = $1 AND settlement_date = $2`
	var s domain.Settlement
	err := r.db.QueryRowContext(ctx, query, collectorID, domain.DayStart(day)).Scan(&s.ID, &s.CollectorID, &s.JournalID,
		&s.Date, &s.AmountCollected, &s.AmountRemitted, &s.Surplus, &s.Shortfall, &s.Outcome,
		&s.AuthorizationNumber, &s.Comment, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrSettlementNotFound)
	}
	return &s, nil
}

func (r *settlementRepository) CreateTrace(ctx context.Context, t *domain.ClosureTrace) error {
	query := `INSERT INTO closure_traces (journal_id, collector_id, service_balance, shortage_balance, movement_count,
	              total_savings, total_withdrawals, captured_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "closure_traces", "journalID", t.JournalID)
	err := r.db.QueryRowContext(ctx, query, t.JournalID, t.CollectorID, t.ServiceBalance, t.ShortageBalance,
		t.MovementCount, t.TotalSavings, t.TotalWithdrawals, t.CapturedAt).Scan(&t.ID)
	logger.DatabaseResult("INSERT", 1, err, "traceID", t.ID)
	return err
}
