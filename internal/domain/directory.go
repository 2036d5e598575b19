package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Agency struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Collector struct {
	ID            int64           `json:"id"`
	AgencyID      int64           `json:"agency_id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	PushToken     string          `json:"push_token,omitempty"`
	HiredOn       time.Time       `json:"hired_on"`
	MaxWithdrawal decimal.Decimal `json:"max_withdrawal"`
	Active        bool            `json:"active"`
}

// MonthsOfService counts full calendar months between the hire date and now.
func (c *Collector) MonthsOfService(now time.Time) int {
	if now.Before(c.HiredOn) {
		return 0
	}
	months := (now.Year()-c.HiredOn.Year())*12 + int(now.Month()) - int(c.HiredOn.Month())
	if now.Day() < c.HiredOn.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

type Client struct {
	ID          int64  `json:"id"`
	CollectorID int64  `json:"collector_id"`
	AgencyID    int64  `json:"agency_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Active      bool   `json:"active"`
}
