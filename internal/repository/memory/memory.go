// Package memory is an in-process backend used for local runs and tests.
// Transactions hold the store lock and work on a copy of the state that
// replaces the live state on commit.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"
)

type state struct {
	nextID        int64
	accounts      map[int64]domain.Account
	snapshots     []domain.BalanceSnapshot
	journals      map[int64]domain.Journal
	movements     []domain.Movement
	parameters    map[int64]domain.CommissionParameter
	settlements   map[int64]domain.Settlement
	traces        []domain.ClosureTrace
	jobs          map[int64]domain.CommissionJob
	agencies      map[int64]domain.Agency
	collectors    map[int64]domain.Collector
	clients       map[int64]domain.Client
	notifications []domain.Notification
}

func newState() *state {
	return &state{
		accounts:    make(map[int64]domain.Account),
		journals:    make(map[int64]domain.Journal),
		parameters:  make(map[int64]domain.CommissionParameter),
		settlements: make(map[int64]domain.Settlement),
		jobs:        make(map[int64]domain.CommissionJob),
		agencies:    make(map[int64]domain.Agency),
		collectors:  make(map[int64]domain.Collector),
		clients:     make(map[int64]domain.Client),
	}
}

func (s *state) clone() *state {
	return &state{
		nextID:        s.nextID,
		accounts:      maps.Clone(s.accounts),
		snapshots:     slices.Clone(s.snapshots),
		journals:      maps.Clone(s.journals),
		movements:     slices.Clone(s.movements),
		parameters:    maps.Clone(s.parameters),
		settlements:   maps.Clone(s.settlements),
		traces:        slices.Clone(s.traces),
		jobs:          maps.Clone(s.jobs),
		agencies:      maps.Clone(s.agencies),
		collectors:    maps.Clone(s.collectors),
		clients:       maps.Clone(s.clients),
		notifications: slices.Clone(s.notifications),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// reserve returns id, or a fresh one when id is zero.
func (s *state) reserve(id int64) int64 {
	if id == 0 {
		return s.id()
	}
	if id > s.nextID {
		s.nextID = id
	}
	return id
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// view resolves the state a repository call works on. Inside a transaction
// the lock is already held by WithinTx.
type view struct {
	store *Store
	tx    *state
}

func (v *view) acquire() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}

func (s *Store) repos(tx *state) repository.Repositories {
	v := &view{store: s, tx: tx}
	return repository.Repositories{
		Accounts:       &accountRepository{v},
		Journals:       &journalRepository{v},
		Movements:      &movementRepository{v},
		Parameters:     &parameterRepository{v},
		Settlements:    &settlementRepository{v},
		CommissionJobs: &commissionJobRepository{v},
		Directory:      &directoryRepository{v},
		Notifications:  &notificationRepository{v},
	}
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(nil)
}

func (s *Store) WithinTx(ctx context.Context, opts repository.TxOptions, fn func(ctx context.Context, repos repository.Repositories) error) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = repository.DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, s.repos(work)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !opts.ReadOnly {
		s.state = work
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) AddAgency(a domain.Agency) domain.Agency {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.state.reserve(a.ID)
	s.state.agencies[a.ID] = a
	return a
}

func (s *Store) AddCollector(c domain.Collector) domain.Collector {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.state.reserve(c.ID)
	s.state.collectors[c.ID] = c
	return c
}

func (s *Store) AddClient(c domain.Client) domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.state.reserve(c.ID)
	s.state.clients[c.ID] = c
	return c
}

func now() time.Time {
	return time.Now().UTC()
}

// Snapshots returns the balance snapshots taken so far.
func (s *Store) Snapshots() []domain.BalanceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.snapshots)
}
