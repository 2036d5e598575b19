package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// DefaultVATRate is applied to every commission when no rate is configured.
var DefaultVATRate = decimal.RequireFromString("0.1925")

var hundred = decimal.NewFromInt(100)

type CommissionOptions struct {
	VATRate  decimal.Decimal
	CacheTTL time.Duration
}

type commissionService struct {
	ledger  *ledger
	repos   repository.Repositories
	vatRate decimal.Decimal
	cache   *parameterCache
}

func NewCommissionService(store repository.Store, clk clock.Clock, ledgerOpts LedgerOptions, opts CommissionOptions) CommissionService {
	rate := opts.VATRate
	if rate.IsZero() {
		rate = DefaultVATRate
	}
	l := newLedger(store, clk, ledgerOpts)
	return &commissionService{
		ledger:  l,
		repos:   store.Repos(),
		vatRate: rate,
		cache:   newParameterCache(opts.CacheTTL, l.clock),
	}
}

// Calculate applies the rule to the principal. A nil rule, an unknown type
// or an out-of-range rate all yield a zero commission.
func (s *commissionService) Calculate(principal decimal.Decimal, param *domain.CommissionParameter) domain.CommissionResult {
	if param == nil || !principal.IsPositive() {
		return domain.CommissionResult{Commission: decimal.Zero, VAT: decimal.Zero}
	}

	var commission decimal.Decimal
	switch param.Type {
	case domain.CommissionTypeFixed:
		commission = decimal.Max(param.Value, decimal.Zero)
	case domain.CommissionTypePercentage:
		commission = s.percentOf(principal, param.Value, param.ID)
	case domain.CommissionTypeTier:
		commission = decimal.Zero
		for _, tier := range param.Tiers {
			if tier.Contains(principal) {
				commission = s.percentOf(principal, tier.Rate, param.ID)
				break
			}
		}
	default:
		logger.Warn("Unknown commission type, no commission applied", "parameter_id", param.ID, "type", param.Type)
		commission = decimal.Zero
	}

	commission = commission.Round(2)
	return domain.CommissionResult{
		Commission: commission,
		VAT:        commission.Mul(s.vatRate).Round(2),
	}
}

func (s *commissionService) percentOf(principal, rate decimal.Decimal, paramID int64) decimal.Decimal {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		logger.Warn("Commission rate out of range, no commission applied", "parameter_id", paramID, "rate", rate.String())
		return decimal.Zero
	}
	return principal.Mul(rate).Div(hundred)
}

func (s *commissionService) Resolve(ctx context.Context, clientID int64, day time.Time) (*domain.CommissionParameter, error) {
	client, err := s.repos.Directory.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.ResolveWithin(ctx, s.repos, client, day)
}

// ResolveWithin walks the client, collector and agency scopes in that order.
func (s *commissionService) ResolveWithin(ctx context.Context, repos repository.Repositories, client *domain.Client, day time.Time) (*domain.CommissionParameter, error) {
	day = domain.DayStart(day)
	return resolveRule(ctx, client, func(ctx context.Context, scope domain.CommissionScope, scopeID int64) (*domain.CommissionParameter, error) {
		return s.findActive(ctx, repos, scope, scopeID, day)
	})
}

type ruleFinder func(ctx context.Context, scope domain.CommissionScope, scopeID int64) (*domain.CommissionParameter, error)

// resolveRule returns the first rule found for the client, its collector,
// then its agency.
func resolveRule(ctx context.Context, client *domain.Client, find ruleFinder) (*domain.CommissionParameter, error) {
	scopes := []struct {
		scope domain.CommissionScope
		id    int64
	}{
		{domain.CommissionScopeClient, client.ID},
		{domain.CommissionScopeCollector, client.CollectorID},
		{domain.CommissionScopeAgency, client.AgencyID},
	}
	for _, sc := range scopes {
		param, err := find(ctx, sc.scope, sc.id)
		if err == nil {
			return param, nil
		}
		if !errors.Is(err, domain.ErrParameterNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrParameterNotFound
}

func (s *commissionService) findActive(ctx context.Context, repos repository.Repositories, scope domain.CommissionScope, scopeID int64, day time.Time) (*domain.CommissionParameter, error) {
	key := cacheKey(scope, scopeID, day)
	if param, ok := s.cache.get(key); ok {
		if param == nil {
			return nil, domain.ErrParameterNotFound
		}
		return param, nil
	}
	param, err := repos.Parameters.FindActive(ctx, scope, scopeID, day)
	switch {
	case err == nil:
		s.cache.put(key, param)
	case errors.Is(err, domain.ErrParameterNotFound):
		s.cache.put(key, nil)
	}
	return param, err
}

func (s *commissionService) CalculateForClient(ctx context.Context, clientID int64, principal decimal.Decimal, day time.Time) (domain.CommissionResult, error) {
	param, err := s.Resolve(ctx, clientID, day)
	if err != nil && !errors.Is(err, domain.ErrParameterNotFound) {
		return domain.CommissionResult{}, err
	}
	return s.Calculate(principal, param), nil
}

// Supersede closes the scope's active rule as of yesterday and installs the
// new one, in a single transaction.
func (s *commissionService) Supersede(ctx context.Context, param *domain.CommissionParameter) (*domain.CommissionParameter, error) {
	if err := validateParameter(param); err != nil {
		return nil, err
	}
	today := domain.DayStart(s.ledger.clock.Now())
	yesterday := today.AddDate(0, 0, -1)

	created := *param
	err := s.ledger.run(ctx, "supersedeParameter", func(ctx context.Context, repos repository.Repositories) error {
		existing, err := repos.Parameters.ListByScope(ctx, param.Scope, param.ScopeID)
		if err != nil {
			return err
		}
		for _, old := range existing {
			if !old.Active {
				continue
			}
			// A rule opened today closes on its own first day.
			validTo := yesterday
			if validTo.Before(old.ValidFrom) {
				validTo = old.ValidFrom
			}
			if err := repos.Parameters.Deactivate(ctx, old.ID, validTo); err != nil {
				return err
			}
		}
		created = *param
		created.ID = 0
		created.Active = true
		created.ValidTo = nil
		if created.ValidFrom.IsZero() {
			created.ValidFrom = today
		}
		created.CreatedAt = s.ledger.clock.Now()
		return repos.Parameters.Create(ctx, &created)
	})
	if err != nil {
		return nil, err
	}
	s.cache.invalidate()
	logger.Info("Commission parameter superseded", "parameter_id", created.ID, "scope", created.Scope, "scope_id", created.ScopeID, "type", created.Type)
	return &created, nil
}

func (s *commissionService) ListParameters(ctx context.Context, scope domain.CommissionScope, scopeID int64) ([]domain.CommissionParameter, error) {
	return s.repos.Parameters.ListByScope(ctx, scope, scopeID)
}

func validateParameter(p *domain.CommissionParameter) error {
	if p == nil {
		return domain.NewValidationError("parameter", "is required")
	}
	switch p.Scope {
	case domain.CommissionScopeClient, domain.CommissionScopeCollector, domain.CommissionScopeAgency:
	default:
		return domain.NewValidationError("scope", fmt.Sprintf("unknown scope %q", p.Scope))
	}
	if p.ScopeID <= 0 {
		return domain.NewValidationError("scope_id", "must be positive")
	}
	switch p.Type {
	case domain.CommissionTypeFixed:
		if p.Value.IsNegative() {
			return domain.NewValidationError("value", "fixed commission cannot be negative")
		}
	case domain.CommissionTypePercentage:
		if p.Value.IsNegative() || p.Value.GreaterThan(hundred) {
			return domain.NewValidationError("value", "rate must be between 0 and 100")
		}
	case domain.CommissionTypeTier:
		if len(p.Tiers) == 0 {
			return domain.NewValidationError("tiers", "at least one tier is required")
		}
		for i, t := range p.Tiers {
			if t.Min.GreaterThan(t.Max) {
				return domain.NewValidationError("tiers", fmt.Sprintf("tier %d has min above max", i))
			}
			if t.Rate.IsNegative() || t.Rate.GreaterThan(hundred) {
				return domain.NewValidationError("tiers", fmt.Sprintf("tier %d rate must be between 0 and 100", i))
			}
		}
	default:
		return domain.NewValidationError("type", fmt.Sprintf("unknown commission type %q", p.Type))
	}
	return nil
}

type cachedParameter struct {
	param     *domain.CommissionParameter
	expiresAt time.Time
}

// parameterCache memoizes rule lookups, misses included. Any write to the
// parameters clears it.
type parameterCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]cachedParameter
}

func newParameterCache(ttl time.Duration, clk clock.Clock) *parameterCache {
	return &parameterCache{ttl: ttl, clock: clk, entries: make(map[string]cachedParameter)}
}

func cacheKey(scope domain.CommissionScope, scopeID int64, day time.Time) string {
	return fmt.Sprintf("%s:%d:%s", scope, scopeID, day.Format("2006-01-02"))
}

func (c *parameterCache) get(key string) (*domain.CommissionParameter, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.param, true
}

func (c *parameterCache) put(key string, param *domain.CommissionParameter) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cachedParameter{param: param, expiresAt: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *parameterCache) invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cachedParameter)
	c.mu.Unlock()
}
