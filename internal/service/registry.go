package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// maxNumberAttempts bounds the random-suffix search for a free account number.
const maxNumberAttempts = 100

// numberSuffix draws the collision suffix. Tests replace it.
var numberSuffix = func() int {
	return rand.IntN(10000)
}

type accountService struct {
	ledger *ledger
	repos  repository.Repositories
}

func NewAccountService(store repository.Store, opts LedgerOptions) AccountService {
	return &accountService{
		ledger: newLedger(store, nil, opts),
		repos:  store.Repos(),
	}
}

func (s *accountService) GetOrCreate(ctx context.Context, ownerID int64, accountType domain.AccountType) (*domain.Account, error) {
	var account *domain.Account
	err := s.ledger.run(ctx, "getOrCreateAccount", func(ctx context.Context, repos repository.Repositories) error {
		var err error
		account, err = getOrCreateAccount(ctx, repos, ownerID, accountType)
		return err
	})
	return account, err
}

func (s *accountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.repos.Accounts.GetByID(ctx, id)
}

func (s *accountService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	account, err := s.repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *accountService) SetBalance(ctx context.Context, account *domain.Account, balance decimal.Decimal) error {
	if err := s.repos.Accounts.UpdateBalance(ctx, account.ID, balance, account.Version); err != nil {
		return err
	}
	account.Balance = balance
	account.Version++
	return nil
}

func (s *accountService) TransferAllowedNegative(accountType domain.AccountType) bool {
	return accountType.AllowsNegative()
}

// DeleteAccount removes an account that holds nothing and that no movement
// references.
func (s *accountService) DeleteAccount(ctx context.Context, id int64) error {
	return s.ledger.run(ctx, "deleteAccount", func(ctx context.Context, repos repository.Repositories) error {
		account, err := repos.Accounts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !account.Balance.IsZero() {
			return fmt.Errorf("%w: balance is %s", domain.ErrAccountInUse, account.Balance.StringFixed(2))
		}
		count, err := repos.Movements.CountByAccount(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d movements", domain.ErrAccountInUse, count)
		}
		return repos.Accounts.Delete(ctx, id)
	})
}

func (s *accountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.repos.Accounts.List(ctx)
}

// getOrCreateAccount returns the owner's account of the type, opening it
// with a zero balance on first use. System accounts use owner 0.
func getOrCreateAccount(ctx context.Context, repos repository.Repositories, ownerID int64, accountType domain.AccountType) (*domain.Account, error) {
	if accountType.IsSystem() {
		ownerID = 0
	}
	account, err := repos.Accounts.GetByOwner(ctx, ownerID, accountType)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	code, err := agencyCode(ctx, repos.Directory, ownerID, accountType)
	if err != nil {
		return nil, err
	}
	number, err := allocateNumber(ctx, repos.Accounts, accountType, code, ownerID)
	if err != nil {
		return nil, err
	}

	account = &domain.Account{
		Number:         number,
		Name:           fmt.Sprintf("%s %d", accountType.DisplayName(), ownerID),
		Balance:        decimal.Zero,
		OwnerID:        ownerID,
		Type:           accountType,
		AllowsNegative: accountType.AllowsNegative(),
	}
	if err := repos.Accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	logger.Info("Account opened", "account_id", account.ID, "number", account.Number, "type", accountType, "owner_id", ownerID)
	return account, nil
}

// agencyCode finds the agency segment of an account number from the owner.
func agencyCode(ctx context.Context, dir repository.DirectoryRepository, ownerID int64, accountType domain.AccountType) (string, error) {
	var agencyID int64
	switch accountType {
	case domain.AccountTypeSystemTax, domain.AccountTypeSystemProduct, domain.AccountTypeSystemWaiting:
		return domain.SystemAgencyCode, nil
	case domain.AccountTypeClient:
		client, err := dir.GetClient(ctx, ownerID)
		if err != nil {
			return "", err
		}
		agencyID = client.AgencyID
	case domain.AccountTypeAgency:
		agencyID = ownerID
	default:
		collector, err := dir.GetCollector(ctx, ownerID)
		if err != nil {
			return "", err
		}
		agencyID = collector.AgencyID
	}
	agency, err := dir.GetAgency(ctx, agencyID)
	if err != nil {
		return "", err
	}
	return agency.Code, nil
}

// allocateNumber probes for a free number before insertion. A failed insert
// would abort the surrounding transaction, so collisions are resolved here.
func allocateNumber(ctx context.Context, accounts repository.AccountRepository, accountType domain.AccountType, code string, ownerID int64) (string, error) {
	base := fmt.Sprintf("%s%s%08d", accountType.Prefix(), code, ownerID)
	candidate := base
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%04d", base, numberSuffix())
		}
		taken, err := accounts.NumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrConfigurationExhausted, base)
}
