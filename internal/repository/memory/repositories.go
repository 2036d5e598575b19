package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"collecte-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type accountRepository struct{ *view }

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	st, release := r.acquire()
	defer release()
	for _, existing := range st.accounts {
		if existing.Number == a.Number {
			return domain.ErrAccountNumberTaken
		}
		if existing.OwnerID == a.OwnerID && existing.Type == a.Type {
			return fmt.Errorf("account %s already exists for owner %d", a.Type, a.OwnerID)
		}
	}
	a.ID = st.id()
	a.Version = 0
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt
	st.accounts[a.ID] = *a
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	st, release := r.acquire()
	defer release()
	a, ok := st.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (r *accountRepository) GetByOwner(ctx context.Context, ownerID int64, accountType domain.AccountType) (*domain.Account, error) {
	st, release := r.acquire()
	defer release()
	for _, a := range st.accounts {
		if a.OwnerID == ownerID && a.Type == accountType {
			return &a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *accountRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	st, release := r.acquire()
	defer release()
	for _, a := range st.accounts {
		if a.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, expectedVersion int64) error {
	st, release := r.acquire()
	defer release()
	a, ok := st.accounts[id]
	if !ok || a.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	a.Balance = balance
	a.Version++
	a.UpdatedAt = now()
	st.accounts[id] = a
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	st, release := r.acquire()
	defer release()
	if _, ok := st.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(st.accounts, id)
	return nil
}

func (r *accountRepository) List(ctx context.Context) ([]domain.Account, error) {
	st, release := r.acquire()
	defer release()
	accounts := make([]domain.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (r *accountRepository) CreateSnapshot(ctx context.Context, s *domain.BalanceSnapshot) error {
	st, release := r.acquire()
	defer release()
	day := domain.DayStart(s.TakenOn)
	for i, existing := range st.snapshots {
		if existing.AccountID == s.AccountID && existing.TakenOn.Equal(day) {
			s.ID = existing.ID
			s.TakenOn = day
			st.snapshots[i] = *s
			return nil
		}
	}
	s.ID = st.id()
	s.TakenOn = day
	st.snapshots = append(st.snapshots, *s)
	return nil
}

type journalRepository struct{ *view }

func (r *journalRepository) Create(ctx context.Context, j *domain.Journal) error {
	st, release := r.acquire()
	defer release()
	for _, existing := range st.journals {
		if existing.CollectorID == j.CollectorID && existing.StartsAt.Equal(j.StartsAt) {
			return fmt.Errorf("journal already exists for collector %d on %s", j.CollectorID, j.StartsAt.Format("2006-01-02"))
		}
	}
	j.ID = st.id()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now()
	}
	st.journals[j.ID] = *j
	return nil
}

func (r *journalRepository) GetByID(ctx context.Context, id int64) (*domain.Journal, error) {
	st, release := r.acquire()
	defer release()
	j, ok := st.journals[id]
	if !ok {
		return nil, domain.ErrJournalNotFound
	}
	return &j, nil
}

func (r *journalRepository) GetByCollectorAndDate(ctx context.Context, collectorID int64, day time.Time) (*domain.Journal, error) {
	st, release := r.acquire()
	defer release()
	start, end := domain.DayRange(day)
	for _, j := range st.journals {
		if j.CollectorID == collectorID && !j.StartsAt.Before(start) && j.StartsAt.Before(end) {
			return &j, nil
		}
	}
	return nil, domain.ErrJournalNotFound
}

func (r *journalRepository) Close(ctx context.Context, id int64, closedAt time.Time) error {
	st, release := r.acquire()
	defer release()
	j, ok := st.journals[id]
	if !ok {
		return domain.ErrJournalNotFound
	}
	if j.IsClosed() {
		return domain.ErrJournalClosed
	}
	j.Status = domain.JournalStatusClosed
	j.ClosedAt = &closedAt
	st.journals[id] = j
	return nil
}

func (r *journalRepository) ListOpenBefore(ctx context.Context, day time.Time) ([]domain.Journal, error) {
	st, release := r.acquire()
	defer release()
	cutoff := domain.DayStart(day)
	var journals []domain.Journal
	for _, j := range st.journals {
		if !j.IsClosed() && j.StartsAt.Before(cutoff) {
			journals = append(journals, j)
		}
	}
	sort.Slice(journals, func(i, k int) bool { return journals[i].StartsAt.Before(journals[k].StartsAt) })
	return journals, nil
}

type movementRepository struct{ *view }

func (r *movementRepository) Create(ctx context.Context, m *domain.Movement) error {
	st, release := r.acquire()
	defer release()
	m.ID = st.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	st.movements = append(st.movements, *m)
	return nil
}

func (r *movementRepository) GetByID(ctx context.Context, id int64) (*domain.Movement, error) {
	st, release := r.acquire()
	defer release()
	for _, m := range st.movements {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, domain.ErrMovementNotFound
}

func (r *movementRepository) ListByJournal(ctx context.Context, journalID int64) ([]domain.Movement, error) {
	st, release := r.acquire()
	defer release()
	var movements []domain.Movement
	for _, m := range st.movements {
		if m.JournalID == journalID {
			movements = append(movements, m)
		}
	}
	return movements, nil
}

func (r *movementRepository) ListByAccount(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	st, release := r.acquire()
	defer release()
	var movements []domain.Movement
	for _, m := range st.movements {
		if m.SourceAccountID == accountID || m.DestinationAccountID == accountID {
			movements = append(movements, m)
		}
	}
	return movements, nil
}

func (r *movementRepository) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	movements, err := r.ListByAccount(ctx, accountID)
	return len(movements), err
}

type parameterRepository struct{ *view }

func (r *parameterRepository) Create(ctx context.Context, p *domain.CommissionParameter) error {
	st, release := r.acquire()
	defer release()
	if p.Active {
		for _, existing := range st.parameters {
			if existing.Active && existing.Scope == p.Scope && existing.ScopeID == p.ScopeID {
				return fmt.Errorf("an active commission parameter already exists for %s %d", p.Scope, p.ScopeID)
			}
		}
	}
	p.ID = st.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	st.parameters[p.ID] = *p
	return nil
}

func (r *parameterRepository) GetByID(ctx context.Context, id int64) (*domain.CommissionParameter, error) {
	st, release := r.acquire()
	defer release()
	p, ok := st.parameters[id]
	if !ok {
		return nil, domain.ErrParameterNotFound
	}
	return &p, nil
}

func (r *parameterRepository) FindActive(ctx context.Context, scope domain.CommissionScope, scopeID int64, day time.Time) (*domain.CommissionParameter, error) {
	st, release := r.acquire()
	defer release()
	var found *domain.CommissionParameter
	for _, p := range st.parameters {
		if p.Scope != scope || p.ScopeID != scopeID || !p.AppliesOn(domain.DayStart(day)) {
			continue
		}
		if found == nil || p.ValidFrom.After(found.ValidFrom) {
			candidate := p
			found = &candidate
		}
	}
	if found == nil {
		return nil, domain.ErrParameterNotFound
	}
	return found, nil
}

func (r *parameterRepository) Deactivate(ctx context.Context, id int64, validTo time.Time) error {
	st, release := r.acquire()
	defer release()
	p, ok := st.parameters[id]
	if !ok || !p.Active {
		return domain.ErrParameterNotFound
	}
	p.Active = false
	p.ValidTo = &validTo
	st.parameters[id] = p
	return nil
}

func (r *parameterRepository) ListByScope(ctx context.Context, scope domain.CommissionScope, scopeID int64) ([]domain.CommissionParameter, error) {
	st, release := r.acquire()
	defer release()
	var params []domain.CommissionParameter
	for _, p := range st.parameters {
		if p.Scope == scope && p.ScopeID == scopeID {
			params = append(params, p)
		}
	}
	sort.Slice(params, func(i, j int) bool { return params[i].ID < params[j].ID })
	return params, nil
}

type settlementRepository struct{ *view }

func (r *settlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	st, release := r.acquire()
	defer release()
	day := domain.DayStart(s.Date)
	for _, existing := range st.settlements {
		if existing.CollectorID == s.CollectorID && existing.Date.Equal(day) {
			return domain.ErrDuplicateSettlement
		}
	}
	s.ID = st.id()
	s.Date = day
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now()
	}
	st.settlements[s.ID] = *s
	return nil
}

func (r *settlementRepository) GetByCollectorAndDate(ctx context.Context, collectorID int64, day time.Time) (*domain.Settlement, error) {
	st, release := r.acquire()
	defer release()
	start := domain.DayStart(day)
	for _, s := range st.settlements {
		if s.CollectorID == collectorID && s.Date.Equal(start) {
			return &s, nil
		}
	}
	return nil, domain.ErrSettlementNotFound
}

func (r *settlementRepository) CreateTrace(ctx context.Context, t *domain.ClosureTrace) error {
	st, release := r.acquire()
	defer release()
	t.ID = st.id()
	st.traces = append(st.traces, *t)
	return nil
}

type commissionJobRepository struct{ *view }

func (r *commissionJobRepository) Enqueue(ctx context.Context, job *domain.CommissionJob) error {
	st, release := r.acquire()
	defer release()
	job.ID = st.id()
	job.Status = domain.CommissionJobPending
	job.CreatedAt = now()
	job.UpdatedAt = job.CreatedAt
	if job.NextRunAt.IsZero() {
		job.NextRunAt = job.CreatedAt
	}
	st.jobs[job.ID] = *job
	return nil
}

func (r *commissionJobRepository) ClaimDue(ctx context.Context, at time.Time, limit int) ([]domain.CommissionJob, error) {
	st, release := r.acquire()
	defer release()
	var due []domain.CommissionJob
	for _, j := range st.jobs {
		if j.Status == domain.CommissionJobPending && !j.NextRunAt.After(at) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ID < due[k].ID })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *commissionJobRepository) update(id int64, fn func(j *domain.CommissionJob)) error {
	st, release := r.acquire()
	defer release()
	j, ok := st.jobs[id]
	if !ok {
		return fmt.Errorf("commission job %d not found", id)
	}
	fn(&j)
	j.UpdatedAt = now()
	st.jobs[id] = j
	return nil
}

func (r *commissionJobRepository) MarkDone(ctx context.Context, id int64) error {
	return r.update(id, func(j *domain.CommissionJob) {
		j.Status = domain.CommissionJobDone
	})
}

func (r *commissionJobRepository) MarkRetry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, lastError string) error {
	return r.update(id, func(j *domain.CommissionJob) {
		j.Attempts = attempts
		j.NextRunAt = nextRunAt
		j.LastError = lastError
	})
}

func (r *commissionJobRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	return r.update(id, func(j *domain.CommissionJob) {
		j.Status = domain.CommissionJobFailed
		j.Attempts = attempts
		j.LastError = lastError
	})
}

type directoryRepository struct{ *view }

func (r *directoryRepository) GetAgency(ctx context.Context, id int64) (*domain.Agency, error) {
	st, release := r.acquire()
	defer release()
	a, ok := st.agencies[id]
	if !ok {
		return nil, domain.ErrAgencyNotFound
	}
	return &a, nil
}

func (r *directoryRepository) GetCollector(ctx context.Context, id int64) (*domain.Collector, error) {
	st, release := r.acquire()
	defer release()
	c, ok := st.collectors[id]
	if !ok {
		return nil, domain.ErrCollectorNotFound
	}
	return &c, nil
}

func (r *directoryRepository) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	st, release := r.acquire()
	defer release()
	c, ok := st.clients[id]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return &c, nil
}

func (r *directoryRepository) ListCollectors(ctx context.Context) ([]domain.Collector, error) {
	st, release := r.acquire()
	defer release()
	var collectors []domain.Collector
	for _, c := range st.collectors {
		if c.Active {
			collectors = append(collectors, c)
		}
	}
	sort.Slice(collectors, func(i, j int) bool { return collectors[i].ID < collectors[j].ID })
	return collectors, nil
}

type notificationRepository struct{ *view }

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	st, release := r.acquire()
	defer release()
	n.ID = st.id()
	n.CreatedOn = now().Format("2006-01-02")
	st.notifications = append(st.notifications, *n)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, collectorID int64, limit, offset int32) ([]domain.Notification, int32, error) {
	st, release := r.acquire()
	defer release()
	var matched []domain.Notification
	for i := len(st.notifications) - 1; i >= 0; i-- {
		if st.notifications[i].CollectorID == collectorID {
			matched = append(matched, st.notifications[i])
		}
	}
	total := int32(len(matched))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, collectorID int64) error {
	st, release := r.acquire()
	defer release()
	for i := range st.notifications {
		if st.notifications[i].ID == id && st.notifications[i].CollectorID == collectorID {
			st.notifications[i].IsRead = true
			return nil
		}
	}
	return fmt.Errorf("notification not found or access denied")
}
