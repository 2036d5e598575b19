package service

import (
	"context"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type AccountService interface {
	GetOrCreate(ctx context.Context, ownerID int64, accountType domain.AccountType) (*domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	// SetBalance is an administrative CAS write that bypasses the ledger: no
	// movement is recorded. Movements change balances through the transfer
	// primitive. It fails with ErrVersionConflict on a stale account.
	SetBalance(ctx context.Context, account *domain.Account, balance decimal.Decimal) error
	TransferAllowedNegative(accountType domain.AccountType) bool
	DeleteAccount(ctx context.Context, id int64) error
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

// RemittanceDirection picks the flow between a collector and the agency.
type RemittanceDirection string

const (
	// RemittanceToAgency moves collected cash from the collector to the agency.
	RemittanceToAgency RemittanceDirection = "REMITTANCE"
	// ReplenishmentFromAgency hands the collector cash from the agency.
	ReplenishmentFromAgency RemittanceDirection = "REPLENISHMENT"
)

type MovementService interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Movement, error)
	OpenJournal(ctx context.Context, collectorID int64, day time.Time) (*domain.Journal, error)
	RecordSavings(ctx context.Context, clientID int64, amount decimal.Decimal, journalID int64) (*domain.Movement, error)
	RecordWithdrawal(ctx context.Context, clientID int64, amount decimal.Decimal, journalID int64) (*domain.Movement, error)
	RecordRemittance(ctx context.Context, collectorID int64, amount decimal.Decimal, journalID int64, direction RemittanceDirection) (*domain.Movement, error)
	GetJournalMovements(ctx context.Context, journalID int64) ([]domain.Movement, error)
	GetAccountMovements(ctx context.Context, accountID int64) ([]domain.Movement, error)
}

type CommissionService interface {
	Calculate(principal decimal.Decimal, param *domain.CommissionParameter) domain.CommissionResult
	// Resolve returns the rule applicable to the client on day, looking at the
	// client, then the collector, then the agency. ErrParameterNotFound means
	// no commission applies.
	Resolve(ctx context.Context, clientID int64, day time.Time) (*domain.CommissionParameter, error)
	// ResolveWithin is Resolve on the caller's transaction.
	ResolveWithin(ctx context.Context, repos repository.Repositories, client *domain.Client, day time.Time) (*domain.CommissionParameter, error)
	CalculateForClient(ctx context.Context, clientID int64, principal decimal.Decimal, day time.Time) (domain.CommissionResult, error)
	Supersede(ctx context.Context, param *domain.CommissionParameter) (*domain.CommissionParameter, error)
	ListParameters(ctx context.Context, scope domain.CommissionScope, scopeID int64) ([]domain.CommissionParameter, error)
}

// ProcessStats summarizes one pass over the commission outbox.
type ProcessStats struct {
	Done    int `json:"done"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

type DistributionService interface {
	Plan(result domain.CommissionResult, collector *domain.Collector, at time.Time) domain.DistributionPlan
	DistributeCommission(ctx context.Context, movementID int64) ([]domain.Movement, error)
	ProcessPendingJobs(ctx context.Context, limit int) (ProcessStats, error)
}

type SettlementService interface {
	PreviewSettlement(ctx context.Context, collectorID int64, day time.Time) (*domain.SettlementPreview, error)
	Settle(ctx context.Context, req domain.SettleRequest) (*domain.SettlementReceipt, error)
	AuthorizationTicket(ctx context.Context, collectorID int64, day time.Time) (string, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, collectorID int64, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, collectorID, notificationID int64) error
}

// Notifier delivers operational alerts. Delivery failures never reach the
// caller.
type Notifier interface {
	Notify(ctx context.Context, note *domain.Notification)
}

// JobSignal wakes the commission worker after an outbox entry commits.
type JobSignal interface {
	Wake()
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, *domain.Notification) {}

type noopSignal struct{}

func (noopSignal) Wake() {}
