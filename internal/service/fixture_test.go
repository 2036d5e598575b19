package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var businessDay = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, note *domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, *note)
}

func (n *recordingNotifier) kinds() []domain.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []domain.NotificationKind
	for _, note := range n.notes {
		kinds = append(kinds, note.Kind)
	}
	return kinds
}

type countingSignal struct {
	mu    sync.Mutex
	count int
}

func (s *countingSignal) Wake() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

type fixture struct {
	t            *testing.T
	ctx          context.Context
	store        *memory.Store
	clock        *clock.Fixed
	notifier     *recordingNotifier
	signal       *countingSignal
	accounts     AccountService
	movements    MovementService
	commission   CommissionService
	distribution DistributionService
	settlement   SettlementService
	agency       domain.Agency
	collector    domain.Collector
	client       domain.Client
	journal      *domain.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFixed(businessDay)
	notifier := &recordingNotifier{}
	signal := &countingSignal{}
	opts := LedgerOptions{TxTimeout: 5 * time.Second, ConflictRetries: 3}

	commission := NewCommissionService(store, clk, opts, CommissionOptions{CacheTTL: time.Minute})
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		clock:      clk,
		notifier:   notifier,
		signal:     signal,
		accounts:   NewAccountService(store, opts),
		movements:  NewMovementService(store, clk, opts, notifier, signal),
		commission: commission,
		distribution: NewDistributionService(store, clk, opts, commission, DistributionOptions{
			JuniorThresholdMonths: 3,
			JuniorFixedReward:     dec("500"),
			MaxAttempts:           3,
		}),
		settlement: NewSettlementService(store, clk, opts, notifier),
	}

	f.agency = store.AddAgency(domain.Agency{ID: 1, Code: "001", Name: "Agence Centre"})
	f.collector = store.AddCollector(domain.Collector{
		ID:            2,
		AgencyID:      f.agency.ID,
		Name:          "Awa Diop",
		Email:         "awa@example.com",
		HiredOn:       time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxWithdrawal: dec("200000"),
		Active:        true,
	})
	f.client = f.addClient(3, "Moussa Fall")

	journal, err := f.movements.OpenJournal(f.ctx, f.collector.ID, businessDay)
	require.NoError(t, err)
	f.journal = journal
	return f
}

func (f *fixture) addClient(id int64, name string) domain.Client {
	return f.store.AddClient(domain.Client{
		ID:          id,
		CollectorID: f.collector.ID,
		AgencyID:    f.agency.ID,
		Name:        name,
		Active:      true,
	})
}

func (f *fixture) balance(ownerID int64, accountType domain.AccountType) decimal.Decimal {
	f.t.Helper()
	account, err := f.store.Repos().Accounts.GetByOwner(f.ctx, ownerID, accountType)
	require.NoError(f.t, err)
	return account.Balance
}

func (f *fixture) save(amount string) *domain.Movement {
	f.t.Helper()
	m, err := f.movements.RecordSavings(f.ctx, f.client.ID, dec(amount), f.journal.ID)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) withdraw(amount string) *domain.Movement {
	f.t.Helper()
	m, err := f.movements.RecordWithdrawal(f.ctx, f.client.ID, dec(amount), f.journal.ID)
	require.NoError(f.t, err)
	return m
}

// requireDecimal compares amounts by value so 6000 equals 6000.00.
func requireDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}
