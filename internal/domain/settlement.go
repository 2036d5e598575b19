package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementOutcome string

const (
	SettlementNormal    SettlementOutcome = "NORMAL"
	SettlementSurplus   SettlementOutcome = "SURPLUS"
	SettlementShortfall SettlementOutcome = "SHORTFALL"
)

// ClassifySettlement compares the remitted cash with the amount due.
func ClassifySettlement(due, remitted decimal.Decimal) (SettlementOutcome, decimal.Decimal, decimal.Decimal) {
	switch remitted.Cmp(due) {
	case 1:
		return SettlementSurplus, remitted.Sub(due), decimal.Zero
	case -1:
		return SettlementShortfall, decimal.Zero, due.Sub(remitted)
	}
	return SettlementNormal, decimal.Zero, decimal.Zero
}

type SettlementState string

const (
	SettlementStateNoJournal SettlementState = "NO_JOURNAL"
	SettlementStateOpen      SettlementState = "OPEN"
	SettlementStatePreviewed SettlementState = "PREVIEWED"
	SettlementStateSettled   SettlementState = "SETTLED"
	SettlementStateClosed    SettlementState = "CLOSED"
)

var settlementTransitions = map[SettlementState][]SettlementState{
	SettlementStateNoJournal: {SettlementStateOpen},
	SettlementStateOpen:      {SettlementStatePreviewed, SettlementStateSettled},
	SettlementStatePreviewed: {SettlementStatePreviewed, SettlementStateSettled},
	SettlementStateSettled:   {SettlementStateClosed},
	SettlementStateClosed:    {},
}

func (s SettlementState) CanTransitionTo(next SettlementState) bool {
	for _, allowed := range settlementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Settlement is the end-of-day versement record of a collector.
type Settlement struct {
	ID                  int64             `json:"id"`
	CollectorID         int64             `json:"collector_id"`
	JournalID           int64             `json:"journal_id"`
	Date                time.Time         `json:"date"`
	AmountCollected     decimal.Decimal   `json:"amount_collected"`
	AmountRemitted      decimal.Decimal   `json:"amount_remitted"`
	Surplus             decimal.Decimal   `json:"surplus"`
	Shortfall           decimal.Decimal   `json:"shortfall"`
	Outcome             SettlementOutcome `json:"outcome"`
	AuthorizationNumber string            `json:"authorization_number"`
	Comment             string            `json:"comment"`
	CreatedBy           string            `json:"created_by"`
	CreatedAt           time.Time         `json:"created_at"`
}

// ClosureTrace is the audit snapshot written just before a journal closes.
type ClosureTrace struct {
	ID               int64           `json:"id"`
	JournalID        int64           `json:"journal_id"`
	CollectorID      int64           `json:"collector_id"`
	ServiceBalance   decimal.Decimal `json:"service_balance"`
	ShortageBalance  decimal.Decimal `json:"shortage_balance"`
	MovementCount    int             `json:"movement_count"`
	TotalSavings     decimal.Decimal `json:"total_savings"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	CapturedAt       time.Time       `json:"captured_at"`
}

// SettlementPreview is a read-only projection of a collector's day.
type SettlementPreview struct {
	CollectorID      int64           `json:"collector_id"`
	Date             time.Time       `json:"date"`
	State            SettlementState `json:"state"`
	Journal          *Journal        `json:"journal,omitempty"`
	Movements        []Movement      `json:"movements"`
	ServiceBalance   Balance         `json:"service_balance"`
	ShortageBalance  Balance         `json:"shortage_balance"`
	AmountDue        decimal.Decimal `json:"amount_due"`
	TotalSavings     decimal.Decimal `json:"total_savings"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	Settlement       *Settlement     `json:"settlement,omitempty"`
}

// SettleRequest is the input of a settlement.
type SettleRequest struct {
	CollectorID    int64
	Date           time.Time
	AmountRemitted decimal.Decimal
	Comment        string
	CreatedBy      string
}

// SettlementReceipt is returned by a successful settlement.
type SettlementReceipt struct {
	Settlement *Settlement   `json:"settlement"`
	Journal    *Journal      `json:"journal"`
	Movements  []Movement    `json:"movements"`
	Trace      *ClosureTrace `json:"trace"`
}

// AuthorizationTicket gathers what the printed settlement ticket shows.
type AuthorizationTicket struct {
	Settlement Settlement
	Collector  Collector
	Agency     Agency
	Journal    Journal
}
