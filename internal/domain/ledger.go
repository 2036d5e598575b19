package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerDrift reports an account whose replayed movements disagree with
// its stored balance.
type LedgerDrift struct {
	AccountID int64           `json:"account_id"`
	Number    string          `json:"number"`
	Stored    decimal.Decimal `json:"stored"`
	Replayed  decimal.Decimal `json:"replayed"`
}

func (d LedgerDrift) Difference() decimal.Decimal {
	return d.Stored.Sub(d.Replayed)
}

type IntegrityReport struct {
	CheckedAt       time.Time     `json:"checked_at"`
	AccountsChecked int           `json:"accounts_checked"`
	Drifts          []LedgerDrift `json:"drifts"`
}

func (r *IntegrityReport) Healthy() bool {
	return len(r.Drifts) == 0
}

// ReplayBalance applies the signed effect of each movement on the account,
// starting from the opening balance.
func ReplayBalance(accountID int64, opening decimal.Decimal, movements []Movement) decimal.Decimal {
	balance := opening
	for i := range movements {
		balance = balance.Add(movements[i].SignedFor(accountID))
	}
	return balance
}
