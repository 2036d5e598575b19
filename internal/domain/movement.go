package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sense string

const (
	SenseSavings               Sense = "SAVINGS"
	SenseWithdrawal            Sense = "WITHDRAWAL"
	SenseRemittance            Sense = "REMITTANCE"
	SenseReplenishment         Sense = "REPLENISHMENT"
	SenseDebit                 Sense = "DEBIT"
	SenseCredit                Sense = "CREDIT"
	SenseCommissionNet         Sense = "COMMISSION_NET"
	SenseCommissionTax         Sense = "COMMISSION_TAX"
	SenseCommissionInstitution Sense = "COMMISSION_INSTITUTION"
)

// Direction says which side of a movement loses the amount.
type Direction int

const (
	// DirectionDebit takes from the source and gives to the destination.
	DirectionDebit Direction = iota + 1
	// DirectionCredit gives to the source and takes from the destination.
	DirectionCredit
)

// Direction maps the sense to its balance effect.
func (s Sense) Direction() (Direction, error) {
	switch s {
	case SenseSavings, SenseWithdrawal, SenseDebit,
		SenseCommissionNet, SenseCommissionTax, SenseCommissionInstitution:
		return DirectionDebit, nil
	case SenseRemittance, SenseReplenishment, SenseCredit:
		return DirectionCredit, nil
	}
	return 0, ErrUnknownSense
}

// Deltas returns the signed balance changes for source and destination.
func (s Sense) Deltas(amount decimal.Decimal) (source, destination decimal.Decimal, err error) {
	dir, err := s.Direction()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if dir == DirectionDebit {
		return amount.Neg(), amount, nil
	}
	return amount, amount.Neg(), nil
}

// CommissionEligible reports whether movements of this sense queue a
// commission distribution.
func (s Sense) CommissionEligible() bool {
	return s == SenseSavings
}

type Movement struct {
	ID                   int64           `json:"id"`
	Reference            string          `json:"reference"`
	Amount               decimal.Decimal `json:"amount"`
	Sense                Sense           `json:"sense"`
	SourceAccountID      int64           `json:"source_account_id"`
	DestinationAccountID int64           `json:"destination_account_id"`
	JournalID            int64           `json:"journal_id"`
	ClientID             *int64          `json:"client_id,omitempty"`
	Label                string          `json:"label"`
	CreatedAt            time.Time       `json:"created_at"`
}

// SignedFor returns the balance change this movement applied to the account.
func (m *Movement) SignedFor(accountID int64) decimal.Decimal {
	src, dst, err := m.Sense.Deltas(m.Amount)
	if err != nil {
		return decimal.Zero
	}
	switch accountID {
	case m.SourceAccountID:
		return src
	case m.DestinationAccountID:
		return dst
	}
	return decimal.Zero
}

// TransferRequest describes one call to the transfer primitive.
type TransferRequest struct {
	SourceAccountID      int64
	DestinationAccountID int64
	Amount               decimal.Decimal
	Sense                Sense
	JournalID            int64
	ClientID             *int64
	Label                string
	// BypassBalanceCheck skips the negative-balance guard. Reserved for
	// settlement adjustments.
	BypassBalanceCheck bool
}
