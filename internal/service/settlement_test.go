package service

import (
	"errors"
	"strings"
	"testing"

	"collecte-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSixThousand leaves the collector owing 6000 to the agency.
func collectSixThousand(f *fixture) {
	f.save("5000")
	f.save("3000")
	f.withdraw("2000")
}

func settleRequest(f *fixture, remitted string) domain.SettleRequest {
	return domain.SettleRequest{
		CollectorID:    f.collector.ID,
		Date:           businessDay,
		AmountRemitted: dec(remitted),
		CreatedBy:      "cashier-1",
	}
}

func TestSettleNormal(t *testing.T) {
	f := newFixture(t)
	collectSixThousand(f)

	receipt, err := f.settlement.Settle(f.ctx, settleRequest(f, "6000"))
	require.NoError(t, err)

	s := receipt.Settlement
	assert.Equal(t, domain.SettlementNormal, s.Outcome)
	requireDecimal(t, "6000", s.AmountCollected)
	requireDecimal(t, "0", s.Surplus)
	requireDecimal(t, "0", s.Shortfall)
	assert.True(t, strings.HasPrefix(s.AuthorizationNumber, "AUT-"))
	assert.Len(t, s.AuthorizationNumber, len("AUT-")+26)

	require.Len(t, receipt.Movements, 1)
	assert.Equal(t, domain.SenseRemittance, receipt.Movements[0].Sense)
	requireDecimal(t, "6000", receipt.Movements[0].Amount)

	requireDecimal(t, "0", f.balance(f.collector.ID, domain.AccountTypeCollectorService))
	requireDecimal(t, "-6000", f.balance(f.agency.ID, domain.AccountTypeAgency))
	assert.True(t, receipt.Journal.IsClosed())
	assert.Empty(t, f.notifier.kinds())

	require.NotNil(t, receipt.Trace)
	requireDecimal(t, "-6000", receipt.Trace.ServiceBalance)
	assert.Equal(t, 3, receipt.Trace.MovementCount)
	requireDecimal(t, "8000", receipt.Trace.TotalSavings)
	requireDecimal(t, "2000", receipt.Trace.TotalWithdrawals)
}

func TestSettleSurplus(t *testing.T) {
	f := newFixture(t)
	collectSixThousand(f)

	receipt, err := f.settlement.Settle(f.ctx, settleRequest(f, "6500"))
	require.NoError(t, err)

	assert.Equal(t, domain.SettlementSurplus, receipt.Settlement.Outcome)
	requireDecimal(t, "500", receipt.Settlement.Surplus)
	require.Len(t, receipt.Movements, 2)
	assert.Equal(t, domain.SenseDebit, receipt.Movements[0].Sense)
	requireDecimal(t, "500", receipt.Movements[0].Amount)
	assert.Equal(t, domain.SenseRemittance, receipt.Movements[1].Sense)
	requireDecimal(t, "6000", receipt.Movements[1].Amount)

	requireDecimal(t, "500", f.balance(f.collector.ID, domain.AccountTypeCollectorShortage))
	requireDecimal(t, "0", f.balance(f.collector.ID, domain.AccountTypeCollectorService))
	requireDecimal(t, "-6500", f.balance(f.agency.ID, domain.AccountTypeAgency))
	assert.Equal(t, []domain.NotificationKind{domain.NotificationSettlementSurplus}, f.notifier.kinds())
}

func TestSettleShortfall(t *testing.T) {
	f := newFixture(t)
	collectSixThousand(f)

	receipt, err := f.settlement.Settle(f.ctx, settleRequest(f, "5000"))
	require.NoError(t, err)

	assert.Equal(t, domain.SettlementShortfall, receipt.Settlement.Outcome)
	requireDecimal(t, "1000", receipt.Settlement.Shortfall)
	require.Len(t, receipt.Movements, 2)
	requireDecimal(t, "1000", receipt.Movements[0].Amount)
	requireDecimal(t, "5000", receipt.Movements[1].Amount)

	requireDecimal(t, "-1000", f.balance(f.collector.ID, domain.AccountTypeCollectorShortage))
	requireDecimal(t, "0", f.balance(f.collector.ID, domain.AccountTypeCollectorService))
	requireDecimal(t, "-5000", f.balance(f.agency.ID, domain.AccountTypeAgency))
	assert.Equal(t, []domain.NotificationKind{domain.NotificationSettlementShortfall}, f.notifier.kinds())
}

func TestSettleNothingRemitted(t *testing.T) {
	f := newFixture(t)
	collectSixThousand(f)

	receipt, err := f.settlement.Settle(f.ctx, settleRequest(f, "0"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementShortfall, receipt.Settlement.Outcome)
	require.Len(t, receipt.Movements, 1, "a zero remittance posts no movement")
	requireDecimal(t, "-6000", f.balance(f.collector.ID, domain.AccountTypeCollectorShortage))
}

func TestSettleEmptyDay(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.settlement.Settle(f.ctx, settleRequest(f, "0"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementNormal, receipt.Settlement.Outcome)
	assert.Empty(t, receipt.Movements)
	assert.True(t, receipt.Journal.IsClosed())
}

func TestSettleRejections(t *testing.T) {
	t.Run("Duplicate settlement", func(t *testing.T) {
		f := newFixture(t)
		collectSixThousand(f)
		_, err := f.settlement.Settle(f.ctx, settleRequest(f, "6000"))
		require.NoError(t, err)

		_, err = f.settlement.Settle(f.ctx, settleRequest(f, "6000"))
		assert.True(t, errors.Is(err, domain.ErrDuplicateSettlement))
	})

	t.Run("Savings against the closed journal", func(t *testing.T) {
		f := newFixture(t)
		collectSixThousand(f)
		_, err := f.settlement.Settle(f.ctx, settleRequest(f, "6000"))
		require.NoError(t, err)
		client := f.balance(f.client.ID, domain.AccountTypeClient)
		service := f.balance(f.collector.ID, domain.AccountTypeCollectorService)
		before, err := f.movements.GetJournalMovements(f.ctx, f.journal.ID)
		require.NoError(t, err)

		_, err = f.movements.RecordSavings(f.ctx, f.client.ID, dec("500"), f.journal.ID)
		assert.ErrorIs(t, err, domain.ErrJournalClosed)

		requireDecimal(t, client.String(), f.balance(f.client.ID, domain.AccountTypeClient))
		requireDecimal(t, service.String(), f.balance(f.collector.ID, domain.AccountTypeCollectorService))
		after, err := f.movements.GetJournalMovements(f.ctx, f.journal.ID)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("No journal for the day", func(t *testing.T) {
		f := newFixture(t)
		req := settleRequest(f, "0")
		req.Date = businessDay.AddDate(0, 0, 1)
		_, err := f.settlement.Settle(f.ctx, req)
		assert.True(t, errors.Is(err, domain.ErrJournalNotFound))
	})

	t.Run("Negative remittance", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.settlement.Settle(f.ctx, settleRequest(f, "-1"))
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Service balance in favor of the collector", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.movements.RecordRemittance(f.ctx, f.collector.ID, dec("100"), f.journal.ID, RemittanceToAgency)
		require.NoError(t, err)

		_, err = f.settlement.Settle(f.ctx, settleRequest(f, "0"))
		assert.True(t, domain.IsValidation(err))

		preview, err := f.settlement.PreviewSettlement(f.ctx, f.collector.ID, businessDay)
		require.NoError(t, err)
		assert.Equal(t, domain.SettlementStatePreviewed, preview.State, "the rejected settlement left the journal open")
	})

	t.Run("Unknown collector", func(t *testing.T) {
		f := newFixture(t)
		req := settleRequest(f, "0")
		req.CollectorID = 99
		_, err := f.settlement.Settle(f.ctx, req)
		assert.True(t, errors.Is(err, domain.ErrCollectorNotFound))
	})
}

func TestPreviewSettlement(t *testing.T) {
	f := newFixture(t)

	preview, err := f.settlement.PreviewSettlement(f.ctx, f.collector.ID, businessDay)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatePreviewed, preview.State)
	assert.False(t, preview.ServiceBalance.Known, "no service account yet")
	assert.Empty(t, preview.Movements)

	collectSixThousand(f)
	preview, err = f.settlement.PreviewSettlement(f.ctx, f.collector.ID, businessDay)
	require.NoError(t, err)
	assert.True(t, preview.ServiceBalance.Known)
	requireDecimal(t, "-6000", preview.ServiceBalance.Amount)
	requireDecimal(t, "6000", preview.AmountDue)
	requireDecimal(t, "8000", preview.TotalSavings)
	requireDecimal(t, "2000", preview.TotalWithdrawals)
	assert.Len(t, preview.Movements, 3)
	assert.Nil(t, preview.Settlement)

	_, err = f.settlement.Settle(f.ctx, settleRequest(f, "6000"))
	require.NoError(t, err)
	preview, err = f.settlement.PreviewSettlement(f.ctx, f.collector.ID, businessDay)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateClosed, preview.State)
	require.NotNil(t, preview.Settlement)
	requireDecimal(t, "0", preview.AmountDue)

	preview, err = f.settlement.PreviewSettlement(f.ctx, f.collector.ID, businessDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateNoJournal, preview.State)
	assert.Nil(t, preview.Journal)
}

func TestAuthorizationTicket(t *testing.T) {
	f := newFixture(t)
	collectSixThousand(f)

	_, err := f.settlement.AuthorizationTicket(f.ctx, f.collector.ID, businessDay)
	assert.True(t, errors.Is(err, domain.ErrSettlementNotFound))

	req := settleRequest(f, "6500")
	req.Comment = "counted twice"
	receipt, err := f.settlement.Settle(f.ctx, req)
	require.NoError(t, err)

	ticket, err := f.settlement.AuthorizationTicket(f.ctx, f.collector.ID, businessDay)
	require.NoError(t, err)

	for _, want := range []string{
		"SETTLEMENT AUTHORIZATION",
		"Agence Centre (001)",
		receipt.Settlement.AuthorizationNumber,
		"2024-01-15",
		"JRN-2-20240115",
		"Awa Diop #2",
		"6000.00",
		"6500.00",
		"Surplus:",
		"500.00",
		"SURPLUS",
		"counted twice",
		"cashier-1",
	} {
		assert.Contains(t, ticket, want)
	}
	assert.NotContains(t, ticket, "Shortfall")

	for _, l := range strings.Split(strings.TrimSuffix(ticket, "\n"), "\n") {
		assert.LessOrEqual(t, len(l), ticketWidth, "line %q", l)
	}
}
