package postgres

import (
	"context"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"
)

type directoryRepository struct {
	db DBTX
}

func NewDirectoryRepository(db DBTX) repository.DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) GetAgency(ctx context.Context, id int64) (*domain.Agency, error) {
	var a domain.Agency
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name FROM agencies WHERE id = $1`, id).Scan(&a.ID, &a.Code, &a.Name)
	if err != nil {
		return nil, notFound(err, domain.ErrAgencyNotFound)
	}
	return &a, nil
}

const collectorColumns = `id, agency_id, name, email, push_token, hired_on, max_withdrawal, active`

func (r *directoryRepository) GetCollector(ctx context.Context, id int64) (*domain.Collector, error) {
	c, err := scanCollector(r.db.QueryRowContext(ctx, `SELECT `+collectorColumns+` FROM collectors WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrCollectorNotFound)
	}
	return c, nil
}

func (r *directoryRepository) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	var c domain.Client
	query := `SELECT id, collector_id, agency_id, name, phone, active FROM clients WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.CollectorID, &c.AgencyID, &c.Name, &c.Phone, &c.Active)
	if err != nil {
		return nil, notFound(err, domain.ErrClientNotFound)
	}
	return &c, nil
}

func (r *directoryRepository) ListCollectors(ctx context.Context) ([]domain.Collector, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+collectorColumns+` FROM collectors WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collectors []domain.Collector
	for rows.Next() {
		c, err := scanCollector(rows)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, *c)
	}
	return collectors, rows.Err()
}

func scanCollector(row rowScanner) (*domain.Collector, error) {
	var c domain.Collector
	if err := row.Scan(&c.ID, &c.AgencyID, &c.Name, &c.Email, &c.PushToken, &c.HiredOn, &c.MaxWithdrawal, &c.Active); err != nil {
		return nil, err
	}
	return &c, nil
}
