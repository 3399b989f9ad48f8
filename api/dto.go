/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Struct tags are checked with go-playground/validator before the engine
  runs (see validate.go). Rules that depend on other fields, such as
  utility types needing payment_day and amount, live in the handlers.

DATES & MONEY:
  Dates are ISO "YYYY-MM-DD" strings with no time component. Amounts are
  decimals, accepted as JSON numbers or strings and returned as strings.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/rent-scheduler/schedule"
	"github.com/warp/rent-scheduler/store/sqlite"
)

// =============================================================================
// SCHEDULING REQUESTS
// =============================================================================

// ScheduleRentRequest is the body of POST /api/payments/schedule/rent.
type ScheduleRentRequest struct {
	ContractID string `json:"contract_id" validate:"required"`
	Year       int    `json:"year" validate:"omitempty,min=2020,max=2030"`
	PaymentDay int    `json:"payment_day" validate:"omitempty,min=1,max=31"`
}

// ScheduleUtilityRequest is the body of POST /api/payments/schedule/utility.
type ScheduleUtilityRequest struct {
	ContractID  string          `json:"contract_id" validate:"required"`
	UtilityType string          `json:"utility_type" validate:"required,oneof=electricity water gas"`
	PaymentDay  int             `json:"payment_day" validate:"required,min=1,max=31"`
	Amount      decimal.Decimal `json:"amount"`
	Year        int             `json:"year" validate:"omitempty,min=2020,max=2030"`
}

// GapRequest is the body of fill-gaps and preview.
type GapRequest struct {
	ContractID string           `json:"contract_id" validate:"required"`
	Type       string           `json:"type" validate:"required,oneof=rent electricity water gas"`
	Year       int              `json:"year" validate:"omitempty,min=2020,max=2030"`
	PaymentDay int              `json:"payment_day" validate:"omitempty,min=1,max=31"`
	Amount     *decimal.Decimal `json:"amount"`
}

// =============================================================================
// SCHEDULING RESPONSES
// =============================================================================

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	UserID      string          `json:"user_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	DueDate     string          `json:"due_date"`
	Status      string          `json:"status"`
	IsAutomatic bool            `json:"is_automatic"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type ScheduleResponse struct {
	Scheduled    int          `json:"scheduled"`
	Skipped      int          `json:"skipped"`
	TotalInYear  int          `json:"total_in_year"`
	SkippedDates []string     `json:"skipped_dates"`
	Payments     []PaymentDTO `json:"payments"`
}

type FillGapsResponse struct {
	Filled   int          `json:"filled"`
	Payments []PaymentDTO `json:"payments"`
}

type PlannedPaymentDTO struct {
	DueDate string          `json:"due_date"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
}

type SkippedPaymentDTO struct {
	DueDate string `json:"due_date"`
	Reason  string `json:"reason"`
}

type PreviewResponse struct {
	ContractID       string              `json:"contract_id"`
	Type             string              `json:"type"`
	Year             int                 `json:"year"`
	PaymentDay       int                 `json:"payment_day"`
	TotalExpected    int                 `json:"total_expected"`
	Existing         int                 `json:"existing"`
	WillCreate       int                 `json:"will_create"`
	WillSkip         int                 `json:"will_skip"`
	PaymentsToCreate []PlannedPaymentDTO `json:"payments_to_create"`
	PaymentsToSkip   []SkippedPaymentDTO `json:"payments_to_skip"`
}

type CategoryStatusDTO struct {
	Expected      int          `json:"expected"`
	Existing      int          `json:"existing"`
	Missing       int          `json:"missing"`
	Payments      []PaymentDTO `json:"payments"`
	MissingMonths []string     `json:"missing_months"`
}

type StatusResponse struct {
	ContractID string                       `json:"contract_id"`
	Year       int                          `json:"year"`
	Types      map[string]CategoryStatusDTO `json:"types"`
}

// =============================================================================
// CONTRACTS
// =============================================================================

// CreateContractRequest is the body of POST /api/contracts. The landlord is
// taken from the bearer token.
type CreateContractRequest struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id" validate:"required"`
	StartDate   string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentDay  int             `json:"payment_day" validate:"required,min=1,max=28"`
	MonthlyRent decimal.Decimal `json:"monthly_rent"`
	Status      string          `json:"status" validate:"omitempty,oneof=active pending terminated expired"`
}

type ContractDTO struct {
	ID          string          `json:"id"`
	LandlordID  string          `json:"landlord_id"`
	TenantID    string          `json:"tenant_id"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date,omitempty"`
	PaymentDay  int             `json:"payment_day"`
	MonthlyRent decimal.Decimal `json:"monthly_rent"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

// =============================================================================
// AUDIT & NOTIFICATIONS
// =============================================================================

type AuditRecordDTO struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	ContractID string         `json:"contract_id"`
	PaymentIDs []string       `json:"payment_ids"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

type NotificationDTO struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	ForDate   string `json:"for_date"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toPaymentDTO(p schedule.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:          p.ID,
		ContractID:  p.ContractID,
		UserID:      p.UserID,
		Type:        string(p.Type),
		Amount:      p.Amount,
		Currency:    p.Currency,
		DueDate:     p.DueDate.String(),
		Status:      string(p.Status),
		IsAutomatic: p.IsAutomatic,
		Notes:       p.Notes,
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toPaymentDTOs(ps []schedule.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(ps))
	for i, p := range ps {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func dateStrings(ds []schedule.Date) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func toScheduleResponse(res *schedule.ScheduleResult) ScheduleResponse {
	return ScheduleResponse{
		Scheduled:    res.Scheduled,
		Skipped:      res.Skipped,
		TotalInYear:  res.Total,
		SkippedDates: dateStrings(res.SkippedDates),
		Payments:     toPaymentDTOs(res.Payments),
	}
}

func toPreviewResponse(res *schedule.PreviewResult) PreviewResponse {
	resp := PreviewResponse{
		ContractID:       res.ContractID,
		Type:             string(res.Type),
		Year:             res.Year,
		PaymentDay:       res.PaymentDay,
		TotalExpected:    res.TotalExpected,
		Existing:         res.Existing,
		WillCreate:       res.WillCreate,
		WillSkip:         res.WillSkip,
		PaymentsToCreate: make([]PlannedPaymentDTO, len(res.ToCreate)),
		PaymentsToSkip:   make([]SkippedPaymentDTO, len(res.ToSkip)),
	}
	for i, p := range res.ToCreate {
		resp.PaymentsToCreate[i] = PlannedPaymentDTO{DueDate: p.DueDate.String(), Type: string(p.Type), Amount: p.Amount}
	}
	for i, p := range res.ToSkip {
		resp.PaymentsToSkip[i] = SkippedPaymentDTO{DueDate: p.DueDate.String(), Reason: p.Reason}
	}
	return resp
}

func toStatusResponse(res *schedule.StatusResult) StatusResponse {
	resp := StatusResponse{
		ContractID: res.ContractID,
		Year:       res.Year,
		Types:      make(map[string]CategoryStatusDTO, len(res.Types)),
	}
	for category, st := range res.Types {
		resp.Types[string(category)] = CategoryStatusDTO{
			Expected:      st.Expected,
			Existing:      st.Existing,
			Missing:       st.Missing,
			Payments:      toPaymentDTOs(st.Payments),
			MissingMonths: st.MissingMonths,
		}
	}
	return resp
}

func toContractDTO(c schedule.Contract) ContractDTO {
	dto := ContractDTO{
		ID:          c.ID,
		LandlordID:  c.LandlordID,
		TenantID:    c.TenantID,
		StartDate:   c.StartDate.String(),
		PaymentDay:  c.PaymentDay,
		MonthlyRent: c.MonthlyRent,
		Status:      string(c.Status),
	}
	if c.EndDate != nil {
		dto.EndDate = c.EndDate.String()
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toAuditRecordDTO(rec schedule.AuditRecord) AuditRecordDTO {
	ids := rec.PaymentIDs
	if ids == nil {
		ids = []string{}
	}
	return AuditRecordDTO{
		ID:         rec.ID,
		ActorID:    rec.ActorID,
		Action:     string(rec.Action),
		ContractID: rec.ContractID,
		PaymentIDs: ids,
		Details:    rec.Details,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toNotificationDTO(n sqlite.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		PaymentID: n.PaymentID,
		Kind:      n.Kind,
		Message:   n.Message,
		ForDate:   n.ForDate.String(),
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}
