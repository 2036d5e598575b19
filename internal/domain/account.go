package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeClient            AccountType = "CLIENT"
	AccountTypeCollectorService  AccountType = "COLLECTOR_SERVICE"
	AccountTypeCollectorShortage AccountType = "COLLECTOR_SHORTAGE"
	AccountTypeCollectorWaiting  AccountType = "COLLECTOR_WAITING"
	AccountTypeCollectorSalary   AccountType = "COLLECTOR_SALARY"
	AccountTypeCollectorCharge   AccountType = "COLLECTOR_CHARGE"
	AccountTypeAgency            AccountType = "AGENCY"
	AccountTypeSystemTax         AccountType = "SYSTEM_TAX"
	AccountTypeSystemProduct     AccountType = "SYSTEM_PRODUCT"
	AccountTypeSystemWaiting     AccountType = "SYSTEM_WAITING"
)

// SystemAgencyCode is used in the number of accounts that belong to no agency.
const SystemAgencyCode = "000"

var AccountTypes = []AccountType{
	AccountTypeClient,
	AccountTypeCollectorService,
	AccountTypeCollectorShortage,
	AccountTypeCollectorWaiting,
	AccountTypeCollectorSalary,
	AccountTypeCollectorCharge,
	AccountTypeAgency,
	AccountTypeSystemTax,
	AccountTypeSystemProduct,
	AccountTypeSystemWaiting,
}

func ParseAccountType(s string) (AccountType, error) {
	for _, t := range AccountTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", NewValidationError("account_type", fmt.Sprintf("unknown account type %q", s))
}

// Prefix is the account number prefix for the type.
func (t AccountType) Prefix() string {
	switch t {
	case AccountTypeClient:
		return "CLI"
	case AccountTypeCollectorService:
		return "SRV"
	case AccountTypeCollectorShortage:
		return "SHT"
	case AccountTypeCollectorWaiting:
		return "WAT"
	case AccountTypeCollectorSalary:
		return "SAL"
	case AccountTypeCollectorCharge:
		return "CHG"
	case AccountTypeAgency:
		return "AGC"
	case AccountTypeSystemTax:
		return "TAX"
	case AccountTypeSystemProduct:
		return "PRD"
	case AccountTypeSystemWaiting:
		return "SWT"
	}
	return "UNK"
}

// AllowsNegative reports whether accounts of this type may carry a balance
// below zero. SHORTAGE and CHARGE track collector debts. SERVICE and AGENCY
// are clearing accounts whose sign records who holds the cash.
func (t AccountType) AllowsNegative() bool {
	switch t {
	case AccountTypeCollectorShortage,
		AccountTypeCollectorCharge,
		AccountTypeCollectorService,
		AccountTypeAgency:
		return true
	}
	return false
}

// IsSystem reports whether the type has a single system-wide instance.
func (t AccountType) IsSystem() bool {
	switch t {
	case AccountTypeSystemTax, AccountTypeSystemProduct, AccountTypeSystemWaiting:
		return true
	}
	return false
}

func (t AccountType) DisplayName() string {
	switch t {
	case AccountTypeClient:
		return "Client savings"
	case AccountTypeCollectorService:
		return "Collector service"
	case AccountTypeCollectorShortage:
		return "Collector shortage"
	case AccountTypeCollectorWaiting:
		return "Collector waiting"
	case AccountTypeCollectorSalary:
		return "Collector salary"
	case AccountTypeCollectorCharge:
		return "Collector charge"
	case AccountTypeAgency:
		return "Agency liaison"
	case AccountTypeSystemTax:
		return "System tax"
	case AccountTypeSystemProduct:
		return "System product"
	case AccountTypeSystemWaiting:
		return "System waiting"
	}
	return string(t)
}

type Account struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	Name           string          `json:"name"`
	Balance        decimal.Decimal `json:"balance"`
	OwnerID        int64           `json:"owner_id"`
	Type           AccountType     `json:"type"`
	AllowsNegative bool            `json:"allows_negative"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Balance distinguishes an unknown balance from a zero one.
type Balance struct {
	Amount decimal.Decimal `json:"amount"`
	Known  bool            `json:"known"`
}

func KnownBalance(amount decimal.Decimal) Balance {
	return Balance{Amount: amount, Known: true}
}

// BalanceSnapshot is a point-in-time copy of an account balance.
type BalanceSnapshot struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	TakenOn   time.Time       `json:"taken_on"`
}
