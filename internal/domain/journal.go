package domain

import "time"

type JournalStatus string

const (
	JournalStatusOpen   JournalStatus = "OPEN"
	JournalStatusClosed JournalStatus = "CLOSED"
)

type Journal struct {
	ID          int64         `json:"id"`
	CollectorID int64         `json:"collector_id"`
	Reference   string        `json:"reference"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      time.Time     `json:"ends_at"`
	Status      JournalStatus `json:"status"`
	ClosedAt    *time.Time    `json:"closed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (j *Journal) IsClosed() bool {
	return j.Status == JournalStatusClosed
}

// Date is the business day of the journal.
func (j *Journal) Date() time.Time {
	return DayStart(j.StartsAt)
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayRange returns the [start, end) bounds of the day containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := DayStart(t)
	return start, start.AddDate(0, 0, 1)
}
