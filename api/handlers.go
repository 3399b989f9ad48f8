/*
handlers.go - HTTP API handlers for rental payment scheduling

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to schedule.Scheduler.

ENDPOINTS:
  Contracts (landlord):
    POST   /api/contracts                       Create contract
    GET    /api/contracts                       List own contracts
    GET    /api/contracts/{id}                  Get contract
  Contracts (landlord or tenant of the contract):
    GET    /api/contracts/{id}/payments         Payments (?year=&type=)

  Scheduling (landlord, contract owner):
    POST   /api/payments/schedule/rent          Schedule a year of rent
    POST   /api/payments/schedule/utility       Schedule a year of one utility
    GET    /api/payments/schedule/status/{id}   Coverage of all four types
    POST   /api/payments/schedule/fill-gaps     Backfill one type
    POST   /api/payments/schedule/preview       Dry run

  Audit (landlord):
    GET    /api/audit?contract_id=              Scheduling runs of a contract

  Notifications (any user):
    GET    /api/notifications                   Payment reminders

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator tags + cross-field rules)
  3. Call the scheduler
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as {error, code, details}:
  - 400 VALIDATION_ERROR:    malformed input
  - 400 CONTRACT_NOT_ACTIVE: contract status is not active
  - 401/403:                 missing token / wrong role
  - 404 CONTRACT_NOT_FOUND:  missing or owned by someone else
  - 500 INTERNAL_ERROR:      persistence failures (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - schedule/scheduler.go: The engine
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/rent-scheduler/schedule"
	"github.com/warp/rent-scheduler/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Scheduler *schedule.Scheduler

	validate *validator.Validate
}

// NewHandler creates a new handler with the given store and scheduler.
func NewHandler(store *sqlite.Store, scheduler *schedule.Scheduler) *Handler {
	return &Handler{
		Store:     store,
		Scheduler: scheduler,
		validate:  newValidator(),
	}
}

// decode reads a JSON body into dst and runs tag validation.
// It writes the 400 response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err), nil)
		return false
	}
	return true
}

// =============================================================================
// SCHEDULING HANDLERS
// =============================================================================

// ScheduleRent schedules the missing rent payments of a year.
// POST /api/payments/schedule/rent
func (h *Handler) ScheduleRent(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRentRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	res, err := h.Scheduler.ScheduleRent(r.Context(), schedule.RentRequest{
		LandlordID: claims.UserID,
		ContractID: req.ContractID,
		Year:       req.Year,
		PaymentDay: req.PaymentDay,
	})
	if err != nil {
		writeScheduleError(w, "Failed to schedule rent", err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleResponse(res))
}

// ScheduleUtility schedules the missing payments of one utility for a year.
// POST /api/payments/schedule/utility
func (h *Handler) ScheduleUtility(w http.ResponseWriter, r *http.Request) {
	var req ScheduleUtilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be greater than 0", nil)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	res, err := h.Scheduler.ScheduleUtility(r.Context(), schedule.UtilityRequest{
		LandlordID: claims.UserID,
		ContractID: req.ContractID,
		Type:       schedule.Category(req.UtilityType),
		Year:       req.Year,
		PaymentDay: req.PaymentDay,
		Amount:     req.Amount,
	})
	if err != nil {
		writeScheduleError(w, "Failed to schedule utility", err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleResponse(res))
}

// FillGaps backfills the missing months of one payment type.
// POST /api/payments/schedule/fill-gaps
func (h *Handler) FillGaps(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGapRequest(w, r)
	if !ok {
		return
	}

	res, err := h.Scheduler.FillGaps(r.Context(), req)
	if err != nil {
		writeScheduleError(w, "Failed to fill gaps", err)
		return
	}

	writeJSON(w, http.StatusCreated, FillGapsResponse{
		Filled:   res.Filled,
		Payments: toPaymentDTOs(res.Payments),
	})
}

// PreviewSchedule reports what fill-gaps would create, without writing.
// POST /api/payments/schedule/preview
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGapRequest(w, r)
	if !ok {
		return
	}

	res, err := h.Scheduler.Preview(r.Context(), req)
	if err != nil {
		writeScheduleError(w, "Failed to preview schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, toPreviewResponse(res))
}

func (h *Handler) decodeGapRequest(w http.ResponseWriter, r *http.Request) (schedule.GapRequest, bool) {
	var req GapRequest
	if !h.decode(w, r, &req) {
		return schedule.GapRequest{}, false
	}
	category, err := schedule.ParseCategory(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return schedule.GapRequest{}, false
	}
	if category.IsUtility() {
		if req.PaymentDay == 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "payment_day is required for utilities", nil)
			return schedule.GapRequest{}, false
		}
		if req.Amount == nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amount is required for utilities", nil)
			return schedule.GapRequest{}, false
		}
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be greater than 0", nil)
		return schedule.GapRequest{}, false
	}

	claims, _ := ClaimsFrom(r.Context())
	return schedule.GapRequest{
		LandlordID: claims.UserID,
		ContractID: req.ContractID,
		Type:       category,
		Year:       req.Year,
		PaymentDay: req.PaymentDay,
		Amount:     req.Amount,
	}, true
}

// GetScheduleStatus reports coverage of all four payment types for a year.
// GET /api/payments/schedule/status/{contractId}?year=
func (h *Handler) GetScheduleStatus(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearParam(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	res, err := h.Scheduler.Status(r.Context(), schedule.StatusRequest{
		LandlordID: claims.UserID,
		ContractID: chi.URLParam(r, "contractId"),
		Year:       year,
	})
	if err != nil {
		writeScheduleError(w, "Failed to get schedule status", err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(res))
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract creates a contract owned by the calling landlord.
// POST /api/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.MonthlyRent.IsPositive() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "monthly_rent must be greater than 0", nil)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	contract := schedule.Contract{
		ID:          req.ID,
		LandlordID:  claims.UserID,
		TenantID:    req.TenantID,
		StartDate:   schedule.MustParseDate(req.StartDate),
		PaymentDay:  req.PaymentDay,
		MonthlyRent: req.MonthlyRent,
		Status:      schedule.ContractStatus(req.Status),
		CreatedAt:   h.Scheduler.Clock.Now(),
	}
	if contract.ID == "" {
		contract.ID = schedule.NewID()
	}
	if contract.Status == "" {
		contract.Status = schedule.ContractActive
	}
	if req.EndDate != "" {
		end := schedule.MustParseDate(req.EndDate)
		if end.Before(contract.StartDate) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "end_date must not be before start_date", nil)
			return
		}
		contract.EndDate = &end
	}

	// Refuse to overwrite someone else's contract through a client-chosen id.
	if existing, err := h.Store.FindContractByID(r.Context(), contract.ID); err == nil && existing.LandlordID != contract.LandlordID {
		writeError(w, http.StatusConflict, "CONTRACT_EXISTS", "Contract id already in use", nil)
		return
	}

	if err := h.Store.SaveContract(r.Context(), contract); err != nil {
		writeScheduleError(w, "Failed to create contract", err)
		return
	}

	writeJSON(w, http.StatusCreated, toContractDTO(contract))
}

// ListContracts returns the calling landlord's contracts.
// GET /api/contracts
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	contracts, err := h.Store.ListContractsByLandlord(r.Context(), claims.UserID)
	if err != nil {
		writeScheduleError(w, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContract returns one of the calling landlord's contracts.
// GET /api/contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.visibleContract(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*contract))
}

// ListContractPayments returns the payments of a contract.
// GET /api/contracts/{id}/payments?year=&type=
func (h *Handler) ListContractPayments(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.visibleContract(w, r, true)
	if !ok {
		return
	}
	year, ok := parseYearParam(w, r)
	if !ok {
		return
	}

	filter := schedule.PaymentFilter{ContractID: contract.ID}
	if t := r.URL.Query().Get("type"); t != "" {
		category, err := schedule.ParseCategory(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		filter.Type = category
	}
	if year != 0 {
		filter.DueFrom = schedule.StartOfYear(year)
		filter.DueTo = schedule.EndOfYear(year)
	}

	payments, err := h.Store.FindPayments(r.Context(), filter)
	if err != nil {
		writeScheduleError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// visibleContract loads {id} if the caller owns it, or is its tenant when
// allowTenant is set. Anything else is reported as not found.
func (h *Handler) visibleContract(w http.ResponseWriter, r *http.Request, allowTenant bool) (*schedule.Contract, bool) {
	claims, _ := ClaimsFrom(r.Context())

	contract, err := h.Store.FindContractByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeScheduleError(w, "Failed to get contract", err)
		return nil, false
	}
	if contract.LandlordID == claims.UserID || (allowTenant && contract.TenantID == claims.UserID) {
		return contract, true
	}
	writeScheduleError(w, "Failed to get contract", schedule.ErrContractNotFound)
	return nil, false
}

// =============================================================================
// AUDIT & NOTIFICATIONS
// =============================================================================

// ListAuditRecords returns the scheduling runs recorded for a contract.
// GET /api/audit?contract_id=
func (h *Handler) ListAuditRecords(w http.ResponseWriter, r *http.Request) {
	contractID := r.URL.Query().Get("contract_id")
	if contractID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "contract_id is required", nil)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	contract, err := h.Store.FindContractByID(r.Context(), contractID)
	if err == nil && contract.LandlordID != claims.UserID {
		err = schedule.ErrContractNotFound
	}
	if err != nil {
		writeScheduleError(w, "Failed to list audit records", err)
		return
	}

	records, err := h.Store.ListAuditRecords(r.Context(), contractID)
	if err != nil {
		writeScheduleError(w, "Failed to list audit records", err)
		return
	}
	dtos := make([]AuditRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toAuditRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListNotifications returns the caller's payment reminders.
// GET /api/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	notifications, err := h.Store.ListNotifications(r.Context(), claims.UserID, 100)
	if err != nil {
		writeScheduleError(w, "Failed to list notifications", err)
		return
	}
	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseYearParam reads ?year=. Zero means "not given".
func parseYearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return 0, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2020 || year > 2030 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "year must be between 2020 and 2030", nil)
		return 0, false
	}
	return year, true
}

// writeScheduleError maps engine and store errors to HTTP responses.
func writeScheduleError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, schedule.ErrContractNotFound):
		writeError(w, http.StatusNotFound, "CONTRACT_NOT_FOUND", "Contract not found", nil)
	case errors.Is(err, schedule.ErrContractNotActive):
		writeError(w, http.StatusBadRequest, "CONTRACT_NOT_ACTIVE", err.Error(), nil)
	case errors.Is(err, schedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		log.Printf("[API] %s: %v", message, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
