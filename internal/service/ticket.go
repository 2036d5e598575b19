package service

import (
	"fmt"
	"strings"

	"collecte-backend/internal/domain"
)

const ticketWidth = 40

// FormatAuthorizationTicket renders the fixed-width slip handed to the
// collector at settlement.
func FormatAuthorizationTicket(t domain.AuthorizationTicket) string {
	var b strings.Builder
	rule := strings.Repeat("=", ticketWidth)
	s := t.Settlement

	b.WriteString(rule + "\n")
	b.WriteString(center("SETTLEMENT AUTHORIZATION") + "\n")
	b.WriteString(center(fmt.Sprintf("%s (%s)", t.Agency.Name, t.Agency.Code)) + "\n")
	b.WriteString(rule + "\n")
	line(&b, "Authorization", s.AuthorizationNumber)
	line(&b, "Date", s.Date.Format("2006-01-02"))
	line(&b, "Journal", t.Journal.Reference)
	line(&b, "Collector", fmt.Sprintf("%s #%d", t.Collector.Name, t.Collector.ID))
	b.WriteString(strings.Repeat("-", ticketWidth) + "\n")
	line(&b, "Amount due", s.AmountCollected.StringFixed(2))
	line(&b, "Amount remitted", s.AmountRemitted.StringFixed(2))
	switch s.Outcome {
	case domain.SettlementSurplus:
		line(&b, "Surplus", s.Surplus.StringFixed(2))
	case domain.SettlementShortfall:
		line(&b, "Shortfall", s.Shortfall.StringFixed(2))
	}
	line(&b, "Outcome", string(s.Outcome))
	if s.Comment != "" {
		line(&b, "Comment", s.Comment)
	}
	b.WriteString(rule + "\n")
	line(&b, "Settled at", s.CreatedAt.Format("2006-01-02 15:04"))
	if s.CreatedBy != "" {
		line(&b, "Settled by", s.CreatedBy)
	}
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%-17s%23s\n", label+":", value)
}

func center(s string) string {
	if len(s) >= ticketWidth {
		return s
	}
	pad := (ticketWidth - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}
