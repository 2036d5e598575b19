package domain

type NotificationKind string

const (
	NotificationSettlementSurplus   NotificationKind = "SETTLEMENT_SURPLUS"
	NotificationSettlementShortfall NotificationKind = "SETTLEMENT_SHORTFALL"
	NotificationWithdrawalCeiling   NotificationKind = "WITHDRAWAL_CEILING"
	NotificationUnsettledJournal    NotificationKind = "UNSETTLED_JOURNAL"
	NotificationLedgerDrift         NotificationKind = "LEDGER_DRIFT"
)

type Notification struct {
	ID          int64             `json:"id"`
	CollectorID int64             `json:"collector_id"`
	AgencyID    int64             `json:"agency_id"`
	Kind        NotificationKind  `json:"kind"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	IsRead      bool              `json:"is_read"`
	Attributes  map[string]string `json:"attributes"`
	CreatedOn   string            `json:"created_on"`
}
