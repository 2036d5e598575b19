package repository

import (
	"context"
	"time"

	"collecte-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByOwner(ctx context.Context, ownerID int64, accountType domain.AccountType) (*domain.Account, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	// UpdateBalance writes the balance only if the stored version still equals
	// expectedVersion, and bumps the version. It returns ErrVersionConflict
	// otherwise.
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, expectedVersion int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Account, error)
	CreateSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error
}

type JournalRepository interface {
	Create(ctx context.Context, journal *domain.Journal) error
	GetByID(ctx context.Context, id int64) (*domain.Journal, error)
	GetByCollectorAndDate(ctx context.Context, collectorID int64, day time.Time) (*domain.Journal, error)
	// Close moves an OPEN journal to CLOSED. A journal that is already closed
	// yields ErrJournalClosed.
	Close(ctx context.Context, id int64, closedAt time.Time) error
	ListOpenBefore(ctx context.Context, day time.Time) ([]domain.Journal, error)
}

type MovementRepository interface {
	Create(ctx context.Context, movement *domain.Movement) error
	GetByID(ctx context.Context, id int64) (*domain.Movement, error)
	ListByJournal(ctx context.Context, journalID int64) ([]domain.Movement, error)
	ListByAccount(ctx context.Context, accountID int64) ([]domain.Movement, error)
	CountByAccount(ctx context.Context, accountID int64) (int, error)
}

type CommissionParameterRepository interface {
	Create(ctx context.Context, param *domain.CommissionParameter) error
	GetByID(ctx context.Context, id int64) (*domain.CommissionParameter, error)
	// FindActive returns the rule of the scope that applies on day, or
	// ErrParameterNotFound.
	FindActive(ctx context.Context, scope domain.CommissionScope, scopeID int64, day time.Time) (*domain.CommissionParameter, error)
	Deactivate(ctx context.Context, id int64, validTo time.Time) error
	ListByScope(ctx context.Context, scope domain.CommissionScope, scopeID int64) ([]domain.CommissionParameter, error)
}

type SettlementRepository interface {
	// Create returns ErrDuplicateSettlement when the collector already has a
	// settlement for the date.
	Create(ctx context.Context, settlement *domain.Settlement) error
	GetByCollectorAndDate(ctx context.Context, collectorID int64, day time.Time) (*domain.Settlement, error)
	CreateTrace(ctx context.Context, trace *domain.ClosureTrace) error
}

type CommissionJobRepository interface {
	Enqueue(ctx context.Context, job *domain.CommissionJob) error
	// ClaimDue returns up to limit pending jobs whose next run time has passed.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.CommissionJob, error)
	MarkDone(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error
}

type DirectoryRepository interface {
	GetAgency(ctx context.Context, id int64) (*domain.Agency, error)
	GetCollector(ctx context.Context, id int64) (*domain.Collector, error)
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	ListCollectors(ctx context.Context) ([]domain.Collector, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, collectorID int64, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, collectorID int64) error
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Accounts       AccountRepository
	Journals       JournalRepository
	Movements      MovementRepository
	Parameters     CommissionParameterRepository
	Settlements    SettlementRepository
	CommissionJobs CommissionJobRepository
	Directory      DirectoryRepository
	Notifications  NotificationRepository
}

type TxOptions struct {
	Timeout  time.Duration
	ReadOnly bool
}

// DefaultTxTimeout bounds every ledger unit of work.
const DefaultTxTimeout = 30 * time.Second

// TxManager runs fn inside a read-committed transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a persistence backend.
type Store interface {
	TxManager
	Repos() Repositories
	Ping(ctx context.Context) error
	Close() error
}
