package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrMaxWithdrawalExceeded  = errors.New("maximum withdrawal exceeded")
	ErrAccountNotFound        = errors.New("account not found")
	ErrJournalNotFound        = errors.New("journal not found")
	ErrParameterNotFound      = errors.New("commission parameter not found")
	ErrMovementNotFound       = errors.New("movement not found")
	ErrCollectorNotFound      = errors.New("collector not found")
	ErrClientNotFound         = errors.New("client not found")
	ErrAgencyNotFound         = errors.New("agency not found")
	ErrSettlementNotFound     = errors.New("settlement not found")
	ErrJournalClosed          = errors.New("journal is closed")
	ErrDuplicateSettlement    = errors.New("settlement already exists for collector and date")
	ErrVersionConflict        = errors.New("optimistic lock failed: account was modified concurrently")
	ErrConfigurationExhausted = errors.New("account number generation exhausted its retry budget")
	ErrUnknownSense           = errors.New("unknown movement sense")
	ErrAccountNumberTaken     = errors.New("account number already in use")
	ErrAccountInUse           = errors.New("account has a non-zero balance or referenced movements")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidTransition      = errors.New("invalid settlement state transition")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientBalanceError carries the account and amounts behind an
// ErrInsufficientBalance failure.
type InsufficientBalanceError struct {
	AccountID int64
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on account %d: balance %s, requested %s",
		e.AccountID, e.Balance.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// MaxWithdrawalError is returned when a withdrawal exceeds the collector ceiling.
type MaxWithdrawalError struct {
	CollectorID int64
	Ceiling     decimal.Decimal
	Requested   decimal.Decimal
}

func (e *MaxWithdrawalError) Error() string {
	return fmt.Sprintf("withdrawal of %s exceeds ceiling %s for collector %d",
		e.Requested.StringFixed(2), e.Ceiling.StringFixed(2), e.CollectorID)
}

func (e *MaxWithdrawalError) Unwrap() error {
	return ErrMaxWithdrawalExceeded
}

// TransactionError wraps a failure inside a ledger unit of work.
type TransactionError struct {
	Operation string
	Cause     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Operation, e.Cause)
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrJournalNotFound) ||
		errors.Is(err, ErrParameterNotFound) ||
		errors.Is(err, ErrMovementNotFound) ||
		errors.Is(err, ErrCollectorNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrAgencyNotFound) ||
		errors.Is(err, ErrSettlementNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateSettlement) ||
		errors.Is(err, ErrJournalClosed) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrAccountInUse)
}

// IsBusinessRule reports failures a caller can fix by changing the request.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrMaxWithdrawalExceeded) ||
		errors.Is(err, ErrInvalidAmount)
}
