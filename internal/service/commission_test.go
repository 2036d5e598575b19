package service

import (
	"testing"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func percentage(rate string) *domain.CommissionParameter {
	return &domain.CommissionParameter{ID: 1, Type: domain.CommissionTypePercentage, Value: dec(rate)}
}

func TestCalculate(t *testing.T) {
	s := NewCommissionService(memory.NewStore(), clock.NewFixed(businessDay), LedgerOptions{}, CommissionOptions{})

	tests := []struct {
		name       string
		principal  string
		param      *domain.CommissionParameter
		commission string
		vat        string
	}{
		{"Percentage", "100000", percentage("2"), "2000", "385"},
		{"Percentage rounds half up", "333", percentage("1.5"), "5", "0.96"},
		{"Rate above 100 yields zero", "1000", percentage("120"), "0", "0"},
		{"Negative rate yields zero", "1000", percentage("-1"), "0", "0"},
		{"Fixed", "50000", &domain.CommissionParameter{Type: domain.CommissionTypeFixed, Value: dec("250")}, "250", "48.13"},
		{"Negative fixed clamps to zero", "50000", &domain.CommissionParameter{Type: domain.CommissionTypeFixed, Value: dec("-5")}, "0", "0"},
		{"No rule", "50000", nil, "0", "0"},
		{"Unknown type", "50000", &domain.CommissionParameter{Type: "BONUS", Value: dec("5")}, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Calculate(dec(tt.principal), tt.param)
			requireDecimal(t, tt.commission, result.Commission)
			requireDecimal(t, tt.vat, result.VAT)
		})
	}
}

func TestCalculateNetOfScenario(t *testing.T) {
	s := NewCommissionService(memory.NewStore(), clock.NewFixed(businessDay), LedgerOptions{}, CommissionOptions{})
	result := s.Calculate(dec("100000"), percentage("2"))
	assert.Equal(t, "2000.00", result.Commission.StringFixed(2))
	assert.Equal(t, "385.00", result.VAT.StringFixed(2))
	assert.Equal(t, "1615.00", result.Net().StringFixed(2))
}

func TestCalculateTierBoundaries(t *testing.T) {
	s := NewCommissionService(memory.NewStore(), clock.NewFixed(businessDay), LedgerOptions{}, CommissionOptions{})
	tiered := &domain.CommissionParameter{
		Type: domain.CommissionTypeTier,
		Tiers: []domain.Tier{
			{Min: dec("0"), Max: dec("10000"), Rate: dec("3")},
			{Min: dec("10000"), Max: dec("50000"), Rate: dec("2")},
			{Min: dec("50000.01"), Max: dec("1000000"), Rate: dec("1")},
		},
	}

	requireDecimal(t, "150", s.Calculate(dec("5000"), tiered).Commission)
	requireDecimal(t, "300", s.Calculate(dec("10000"), tiered).Commission, "overlapping bound goes to the first tier")
	requireDecimal(t, "1000", s.Calculate(dec("50000"), tiered).Commission, "upper bound is inclusive")
	requireDecimal(t, "600", s.Calculate(dec("60000"), tiered).Commission)
	requireDecimal(t, "0", s.Calculate(dec("2000000"), tiered).Commission, "no tier matches")
}

func TestResolveOrder(t *testing.T) {
	f := newFixture(t)
	day := businessDay

	_, err := f.commission.Resolve(f.ctx, f.client.ID, day)
	assert.ErrorIs(t, err, domain.ErrParameterNotFound)

	agencyRule, err := f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeAgency, ScopeID: f.agency.ID,
		Type: domain.CommissionTypePercentage, Value: dec("1"),
	})
	require.NoError(t, err)
	param, err := f.commission.Resolve(f.ctx, f.client.ID, day)
	require.NoError(t, err)
	assert.Equal(t, agencyRule.ID, param.ID)

	collectorRule, err := f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeCollector, ScopeID: f.collector.ID,
		Type: domain.CommissionTypeFixed, Value: dec("200"),
	})
	require.NoError(t, err)
	param, err = f.commission.Resolve(f.ctx, f.client.ID, day)
	require.NoError(t, err)
	assert.Equal(t, collectorRule.ID, param.ID)

	clientRule, err := f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeClient, ScopeID: f.client.ID,
		Type: domain.CommissionTypePercentage, Value: dec("2"),
	})
	require.NoError(t, err)
	param, err = f.commission.Resolve(f.ctx, f.client.ID, day)
	require.NoError(t, err)
	assert.Equal(t, clientRule.ID, param.ID)

	result, err := f.commission.CalculateForClient(f.ctx, f.client.ID, dec("100000"), day)
	require.NoError(t, err)
	requireDecimal(t, "2000", result.Commission)
}

func TestSupersede(t *testing.T) {
	f := newFixture(t)
	first, err := f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeClient, ScopeID: f.client.ID,
		Type: domain.CommissionTypePercentage, Value: dec("2"),
	})
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	second, err := f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeClient, ScopeID: f.client.ID,
		Type: domain.CommissionTypeFixed, Value: dec("300"),
	})
	require.NoError(t, err)

	history, err := f.commission.ListParameters(f.ctx, domain.CommissionScopeClient, f.client.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, first.ID, history[0].ID)
	assert.False(t, history[0].Active)
	require.NotNil(t, history[0].ValidTo)
	assert.Equal(t, "2024-01-16", history[0].ValidTo.Format("2006-01-02"))

	assert.Equal(t, second.ID, history[1].ID)
	assert.True(t, history[1].Active)
	assert.Equal(t, "2024-01-17", history[1].ValidFrom.Format("2006-01-02"))

	result, err := f.commission.CalculateForClient(f.ctx, f.client.ID, dec("100000"), f.clock.Now())
	require.NoError(t, err)
	requireDecimal(t, "300", result.Commission, "cache is invalidated by the write")
}

func TestSupersedeTwiceOnTheSameDay(t *testing.T) {
	f := newFixture(t)
	first, err := f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeClient, ScopeID: f.client.ID,
		Type: domain.CommissionTypePercentage, Value: dec("2"),
	})
	require.NoError(t, err)
	_, err = f.commission.Supersede(f.ctx, &domain.CommissionParameter{
		Scope: domain.CommissionScopeClient, ScopeID: f.client.ID,
		Type: domain.CommissionTypePercentage, Value: dec("3"),
	})
	require.NoError(t, err)

	history, err := f.commission.ListParameters(f.ctx, domain.CommissionScopeClient, f.client.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	require.NotNil(t, history[0].ValidTo)
	assert.False(t, history[0].ValidTo.Before(history[0].ValidFrom), "window never closes before it opens")
	assert.Equal(t, "2024-01-15", history[0].ValidTo.Format("2006-01-02"))

	result, err := f.commission.CalculateForClient(f.ctx, f.client.ID, dec("100000"), f.clock.Now())
	require.NoError(t, err)
	requireDecimal(t, "3000", result.Commission)
}

func TestSupersedeValidation(t *testing.T) {
	f := newFixture(t)
	bad := []*domain.CommissionParameter{
		nil,
		{Scope: "REGION", ScopeID: 1, Type: domain.CommissionTypeFixed},
		{Scope: domain.CommissionScopeClient, ScopeID: 0, Type: domain.CommissionTypeFixed},
		{Scope: domain.CommissionScopeClient, ScopeID: 1, Type: domain.CommissionTypePercentage, Value: dec("101")},
		{Scope: domain.CommissionScopeClient, ScopeID: 1, Type: domain.CommissionTypeTier},
		{Scope: domain.CommissionScopeClient, ScopeID: 1, Type: domain.CommissionTypeTier, Tiers: []domain.Tier{{Min: dec("10"), Max: dec("1"), Rate: dec("1")}}},
	}
	for _, p := range bad {
		_, err := f.commission.Supersede(f.ctx, p)
		assert.True(t, domain.IsValidation(err), "%+v", p)
	}
}
