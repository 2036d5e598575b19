package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Services groups what the HTTP API calls into.
type Services struct {
	Accounts      service.AccountService
	Movements     service.MovementService
	Commission    service.CommissionService
	Distribution  service.DistributionService
	Settlement    service.SettlementService
	Notifications service.NotificationService
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc      Services
	pinger   Pinger
	validate *validator.Validate
}

func NewHandler(svc Services, pinger Pinger) *Handler {
	return &Handler{svc: svc, pinger: pinger, validate: validator.New()}
}

// RegisterRoutes mounts the ledger API on router.
func RegisterRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/accounts", h.ListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id:[0-9]+}", h.DeleteAccount).Methods(http.MethodDelete)
	api.HandleFunc("/accounts/{id:[0-9]+}/movements", h.AccountMovements).Methods(http.MethodGet)

	api.HandleFunc("/journals", h.OpenJournal).Methods(http.MethodPost)
	api.HandleFunc("/journals/{id:[0-9]+}/movements", h.JournalMovements).Methods(http.MethodGet)

	api.HandleFunc("/movements/transfers", h.Transfer).Methods(http.MethodPost)
	api.HandleFunc("/movements/savings", h.RecordSavings).Methods(http.MethodPost)
	api.HandleFunc("/movements/withdrawals", h.RecordWithdrawal).Methods(http.MethodPost)
	api.HandleFunc("/movements/remittances", h.RecordRemittance).Methods(http.MethodPost)
	api.HandleFunc("/movements/{id:[0-9]+}/commission", h.DistributeCommission).Methods(http.MethodPost)

	api.HandleFunc("/commission/parameters", h.ListParameters).Methods(http.MethodGet)
	api.HandleFunc("/commission/parameters", h.SupersedeParameter).Methods(http.MethodPost)
	api.HandleFunc("/commission/jobs/process", h.ProcessCommissionJobs).Methods(http.MethodPost)
	api.HandleFunc("/clients/{id:[0-9]+}/commission", h.CalculateCommission).Methods(http.MethodGet)

	api.HandleFunc("/collectors/{id:[0-9]+}/settlements", h.Settle).Methods(http.MethodPost)
	api.HandleFunc("/collectors/{id:[0-9]+}/settlements/{date}/preview", h.PreviewSettlement).Methods(http.MethodGet)
	api.HandleFunc("/collectors/{id:[0-9]+}/settlements/{date}/ticket", h.AuthorizationTicket).Methods(http.MethodGet)

	api.HandleFunc("/collectors/{id:[0-9]+}/notifications", h.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/collectors/{id:[0-9]+}/notifications/{nid:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPost)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		sendError(w, "Store unavailable", http.StatusServiceUnavailable, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Accounts

type createAccountRequest struct {
	OwnerID int64  `json:"owner_id" validate:"gte=0"`
	Type    string `json:"type" validate:"required,oneof=CLIENT COLLECTOR_SERVICE COLLECTOR_SHORTAGE COLLECTOR_WAITING COLLECTOR_SALARY COLLECTOR_CHARGE AGENCY SYSTEM_TAX SYSTEM_PRODUCT SYSTEM_WAITING"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	account, err := h.svc.Accounts.GetOrCreate(r.Context(), req.OwnerID, domain.AccountType(req.Type))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.Accounts.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	account, err := h.svc.Accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	if err := h.svc.Accounts.DeleteAccount(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AccountMovements(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	movements, err := h.svc.Movements.GetAccountMovements(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(movements))
}

// Journals and movements

type openJournalRequest struct {
	CollectorID int64  `json:"collector_id" validate:"required,gt=0"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) OpenJournal(w http.ResponseWriter, r *http.Request) {
	var req openJournalRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	day, _ := time.Parse(dateLayout, req.Date)
	journal, err := h.svc.Movements.OpenJournal(r.Context(), req.CollectorID, day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, journal)
}

func (h *Handler) JournalMovements(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	movements, err := h.svc.Movements.GetJournalMovements(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(movements))
}

type transferRequest struct {
	SourceAccountID      int64           `json:"source_account_id" validate:"required,gt=0"`
	DestinationAccountID int64           `json:"destination_account_id" validate:"required,gt=0,nefield=SourceAccountID"`
	Amount               decimal.Decimal `json:"amount"`
	Sense                string          `json:"sense" validate:"required,oneof=SAVINGS WITHDRAWAL REMITTANCE REPLENISHMENT DEBIT CREDIT COMMISSION_NET COMMISSION_TAX COMMISSION_INSTITUTION"`
	JournalID            int64           `json:"journal_id" validate:"required,gt=0"`
	Label                string          `json:"label" validate:"max=255"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	movement, err := h.svc.Movements.Transfer(r.Context(), domain.TransferRequest{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Sense:                domain.Sense(req.Sense),
		JournalID:            req.JournalID,
		Label:                req.Label,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

type clientMovementRequest struct {
	ClientID  int64           `json:"client_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	JournalID int64           `json:"journal_id" validate:"required,gt=0"`
}

func (h *Handler) RecordSavings(w http.ResponseWriter, r *http.Request) {
	var req clientMovementRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	movement, err := h.svc.Movements.RecordSavings(r.Context(), req.ClientID, req.Amount, req.JournalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (h *Handler) RecordWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req clientMovementRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	movement, err := h.svc.Movements.RecordWithdrawal(r.Context(), req.ClientID, req.Amount, req.JournalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

type remittanceRequest struct {
	CollectorID int64           `json:"collector_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	JournalID   int64           `json:"journal_id" validate:"required,gt=0"`
	Direction   string          `json:"direction" validate:"required,oneof=REMITTANCE REPLENISHMENT"`
}

func (h *Handler) RecordRemittance(w http.ResponseWriter, r *http.Request) {
	var req remittanceRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	movement, err := h.svc.Movements.RecordRemittance(r.Context(), req.CollectorID, req.Amount, req.JournalID, service.RemittanceDirection(req.Direction))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

// Commission

func (h *Handler) DistributeCommission(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	legs, err := h.svc.Distribution.DistributeCommission(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(legs))
}

func (h *Handler) ProcessCommissionJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(w, "limit must be a positive integer", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}
	stats, err := h.svc.Distribution.ProcessPendingJobs(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type tierRequest struct {
	Min  decimal.Decimal `json:"min"`
	Max  decimal.Decimal `json:"max"`
	Rate decimal.Decimal `json:"rate"`
}

type parameterRequest struct {
	Scope     string          `json:"scope" validate:"required,oneof=CLIENT COLLECTOR AGENCY"`
	ScopeID   int64           `json:"scope_id" validate:"required,gt=0"`
	Type      string          `json:"type" validate:"required,oneof=FIXED PERCENTAGE TIER"`
	Value     decimal.Decimal `json:"value"`
	Tiers     []tierRequest   `json:"tiers" validate:"required_if=Type TIER"`
	ValidFrom string          `json:"valid_from" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) SupersedeParameter(w http.ResponseWriter, r *http.Request) {
	var req parameterRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	param := &domain.CommissionParameter{
		Scope:   domain.CommissionScope(req.Scope),
		ScopeID: req.ScopeID,
		Type:    domain.CommissionType(req.Type),
		Value:   req.Value,
	}
	for _, t := range req.Tiers {
		param.Tiers = append(param.Tiers, domain.Tier{Min: t.Min, Max: t.Max, Rate: t.Rate})
	}
	if req.ValidFrom != "" {
		param.ValidFrom, _ = time.Parse(dateLayout, req.ValidFrom)
	}
	created, err := h.svc.Commission.Supersede(r.Context(), param)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListParameters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scopeID, err := strconv.ParseInt(q.Get("scope_id"), 10, 64)
	if err != nil || scopeID <= 0 {
		sendError(w, "scope_id must be a positive integer", http.StatusBadRequest, nil)
		return
	}
	params, err := h.svc.Commission.ListParameters(r.Context(), domain.CommissionScope(q.Get("scope")), scopeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(params))
}

func (h *Handler) CalculateCommission(w http.ResponseWriter, r *http.Request) {
	clientID, _ := pathID(r, "id")
	q := r.URL.Query()
	principal, err := decimal.NewFromString(q.Get("principal"))
	if err != nil {
		sendError(w, "principal must be a decimal amount", http.StatusBadRequest, nil)
		return
	}
	day, ok := queryDate(w, q.Get("date"))
	if !ok {
		return
	}
	result, err := h.svc.Commission.CalculateForClient(r.Context(), clientID, principal, day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commission": result.Commission,
		"vat":        result.VAT,
		"net":        result.Net(),
	})
}

// Settlement

type settleRequest struct {
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	AmountRemitted decimal.Decimal `json:"amount_remitted"`
	Comment        string          `json:"comment" validate:"max=500"`
	CreatedBy      string          `json:"created_by" validate:"max=100"`
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	collectorID, _ := pathID(r, "id")
	var req settleRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	day, _ := time.Parse(dateLayout, req.Date)
	receipt, err := h.svc.Settlement.Settle(r.Context(), domain.SettleRequest{
		CollectorID:    collectorID,
		Date:           day,
		AmountRemitted: req.AmountRemitted,
		Comment:        req.Comment,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	collectorID, _ := pathID(r, "id")
	day, ok := pathDate(w, r)
	if !ok {
		return
	}
	preview, err := h.svc.Settlement.PreviewSettlement(r.Context(), collectorID, day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) AuthorizationTicket(w http.ResponseWriter, r *http.Request) {
	collectorID, _ := pathID(r, "id")
	day, ok := pathDate(w, r)
	if !ok {
		return
	}
	ticket, err := h.svc.Settlement.AuthorizationTicket(r.Context(), collectorID, day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ticket))
}

// Notifications

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	collectorID, _ := pathID(r, "id")
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	notes, total, err := h.svc.Notifications.GetNotifications(r.Context(), collectorID, int32(page), int32(pageSize))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": nonNil(notes),
		"total_count":   total,
	})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	collectorID, _ := pathID(r, "id")
	noteID, _ := pathID(r, "nid")
	if err := h.svc.Notifications.MarkAsRead(r.Context(), collectorID, noteID); err != nil {
		sendError(w, err.Error(), http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID reads a numeric route variable. The route patterns only match
// digits.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func pathDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	day, err := time.Parse(dateLayout, mux.Vars(r)["date"])
	if err != nil {
		sendError(w, "date must use the YYYY-MM-DD format", http.StatusBadRequest, nil)
		return time.Time{}, false
	}
	return day, true
}

// queryDate defaults to today when raw is empty.
func queryDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now().UTC(), true
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		sendError(w, "date must use the YYYY-MM-DD format", http.StatusBadRequest, nil)
		return time.Time{}, false
	}
	return day, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
