/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Response types decouple
  the ledger's domain model from the external API contract. Request bodies
  reuse the ledger input structs directly, since those already carry json
  and validate tags.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types that have no ledger input counterpart

MONEY:
  Always rendered as a string with two decimals ("1250.00") so clients never
  round-trip amounts through floating point.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/validate.go: Operation input structs
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/scholarship-ledger/ledger"
	"github.com/warp/scholarship-ledger/reports"
)

func moneyString(d decimal.Decimal) string {
	return d.StringFixed(ledger.MoneyScale)
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SetFundActiveRequest toggles whether a fund accepts new allocations.
type SetFundActiveRequest struct {
	Active *bool `json:"active"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type AlumniDTO struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email,omitempty"`
	GraduationYear   int       `json:"graduation_year,omitempty"`
	TotalPledged     string    `json:"total_pledged"`
	TotalContributed string    `json:"total_contributed"`
	CreatedAt        time.Time `json:"created_at"`
}

type PledgeDTO struct {
	ID              string     `json:"id"`
	AlumniID        string     `json:"alumni_id"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	PledgeDate      time.Time  `json:"pledge_date"`
	FulfillmentDate *time.Time `json:"fulfillment_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type PaymentDTO struct {
	ID            string     `json:"id"`
	AlumniID      string     `json:"alumni_id"`
	PledgeID      *string    `json:"pledge_id,omitempty"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	GatewayRef    string     `json:"gateway_ref,omitempty"`
	ReceiptPath   string     `json:"receipt_path,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	VerifiedBy    string     `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type FundDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Amount          string    `json:"amount"`
	AllocatedAmount string    `json:"allocated_amount"`
	RemainingAmount string    `json:"remaining_amount"`
	IsActive        bool      `json:"is_active"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

type ExpenseDTO struct {
	ID          string    `json:"id"`
	FundID      string    `json:"program_fund_id"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	ExpenseDate time.Time `json:"expense_date"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
}

type EventDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	RequiredFunds string     `json:"required_funds"`
	FundID        *string    `json:"program_fund_id,omitempty"`
	Status        string     `json:"status"`
	EventDate     *time.Time `json:"event_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type DriftDTO struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Field    string `json:"field"`
	Cached   string `json:"cached"`
	Computed string `json:"computed"`
}

type AuditDTO struct {
	Balanced bool       `json:"balanced"`
	Drifts   []DriftDTO `json:"drifts"`
	// RanAt is set when the result comes from the last scheduled pass.
	RanAt *time.Time `json:"ran_at,omitempty"`
}

type EntryDTO struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	SubjectID      string    `json:"subject_id"`
	AlumniID       string    `json:"alumni_id,omitempty"`
	FundID         string    `json:"program_fund_id,omitempty"`
	Amount         string    `json:"amount"`
	ActorID        string    `json:"actor_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// REPORT TYPES
// =============================================================================

type CategorySummaryDTO struct {
	Category       string `json:"category"`
	Funds          int    `json:"funds"`
	ActiveFunds    int    `json:"active_funds"`
	Amount         string `json:"amount"`
	Allocated      string `json:"allocated"`
	Remaining      string `json:"remaining"`
	UtilisationPct string `json:"utilisation_pct"`
}

type FundReportDTO struct {
	Categories []CategorySummaryDTO `json:"categories"`
	Total      CategorySummaryDTO   `json:"total"`
}

type BucketDTO struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Amount string `json:"amount"`
}

type PledgeReportDTO struct {
	ByStatus       []BucketDTO `json:"by_status"`
	Count          int         `json:"count"`
	Amount         string      `json:"amount"`
	FulfilledPct   string      `json:"fulfilled_pct"`
	CancelledCount int         `json:"cancelled_count"`
}

type PaymentReportDTO struct {
	From           *time.Time  `json:"from,omitempty"`
	To             *time.Time  `json:"to,omitempty"`
	ByStatus       []BucketDTO `json:"by_status"`
	ByMethod       []BucketDTO `json:"by_method"`
	VerifiedAmount string      `json:"verified_amount"`
	PendingCount   int         `json:"pending_count"`
}

type StatementDTO struct {
	Alumni      AlumniDTO    `json:"alumni"`
	Pledges     []PledgeDTO  `json:"pledges"`
	Payments    []PaymentDTO `json:"payments"`
	Outstanding string       `json:"outstanding"`
}

type DashboardDTO struct {
	AlumniCount       int    `json:"alumni_count"`
	TotalPledged      string `json:"total_pledged"`
	TotalContributed  string `json:"total_contributed"`
	CollectionRatePct string `json:"collection_rate_pct"`
	PendingPayments   int    `json:"pending_payments"`
	TotalFunds        string `json:"total_funds"`
	TotalAllocated    string `json:"total_allocated"`
	TotalRemaining    string `json:"total_remaining"`
	ActiveFunds       int    `json:"active_funds"`
	FundedEvents      int    `json:"funded_events"`
	UtilisationPct    string `json:"utilisation_pct"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAlumniDTO(a ledger.AlumniProfile) AlumniDTO {
	return AlumniDTO{
		ID:               string(a.ID),
		Name:             a.Name,
		Email:            a.Email,
		GraduationYear:   a.GraduationYear,
		TotalPledged:     moneyString(a.TotalPledged),
		TotalContributed: moneyString(a.TotalContributed),
		CreatedAt:        a.CreatedAt,
	}
}

func toPledgeDTO(p ledger.Pledge) PledgeDTO {
	return PledgeDTO{
		ID:              string(p.ID),
		AlumniID:        string(p.AlumniID),
		Amount:          moneyString(p.Amount),
		Currency:        p.Currency,
		Status:          string(p.Status),
		PledgeDate:      p.PledgeDate,
		FulfillmentDate: p.FulfillmentDate,
		Notes:           p.Notes,
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:            string(p.ID),
		AlumniID:      string(p.AlumniID),
		Amount:        moneyString(p.Amount),
		Currency:      p.Currency,
		PaymentMethod: string(p.Method),
		Status:        string(p.Status),
		GatewayRef:    p.GatewayRef,
		ReceiptPath:   p.ReceiptPath,
		Notes:         p.Notes,
		VerifiedBy:    p.VerifiedBy,
		VerifiedAt:    p.VerifiedAt,
		CreatedAt:     p.CreatedAt,
	}
	if p.PledgeID != nil {
		id := string(*p.PledgeID)
		dto.PledgeID = &id
	}
	return dto
}

func toAuditDTO(drifts []ledger.Drift) AuditDTO {
	out := AuditDTO{Balanced: len(drifts) == 0, Drifts: make([]DriftDTO, len(drifts))}
	for i, d := range drifts {
		out.Drifts[i] = DriftDTO{
			Kind: d.Kind, ID: d.ID, Field: d.Field,
			Cached: moneyString(d.Cached), Computed: moneyString(d.Computed),
		}
	}
	return out
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:             e.ID,
		Kind:           string(e.Kind),
		SubjectID:      e.SubjectID,
		AlumniID:       string(e.AlumniID),
		FundID:         string(e.FundID),
		Amount:         moneyString(e.Amount),
		ActorID:        e.ActorID,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt,
	}
}

func toFundDTO(f ledger.ProgramFund) FundDTO {
	return FundDTO{
		ID:              string(f.ID),
		Name:            f.Name,
		Category:        f.Category,
		Amount:          moneyString(f.Amount),
		AllocatedAmount: moneyString(f.AllocatedAmount),
		RemainingAmount: moneyString(f.RemainingAmount),
		IsActive:        f.IsActive,
		Version:         f.Version,
		CreatedAt:       f.CreatedAt,
	}
}

func toExpenseDTO(x ledger.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          string(x.ID),
		FundID:      string(x.FundID),
		Amount:      moneyString(x.Amount),
		Description: x.Description,
		ExpenseDate: x.ExpenseDate,
		RecordedBy:  x.RecordedBy,
	}
}

func toEventDTO(ev ledger.Event) EventDTO {
	dto := EventDTO{
		ID:            string(ev.ID),
		Name:          ev.Name,
		RequiredFunds: moneyString(ev.RequiredFunds),
		Status:        string(ev.Status),
		EventDate:     ev.EventDate,
		CreatedAt:     ev.CreatedAt,
	}
	if ev.FundID != nil {
		id := string(*ev.FundID)
		dto.FundID = &id
	}
	return dto
}

func toCategoryDTO(c reports.CategorySummary) CategorySummaryDTO {
	return CategorySummaryDTO{
		Category:       c.Category,
		Funds:          c.Funds,
		ActiveFunds:    c.ActiveFunds,
		Amount:         moneyString(c.Amount),
		Allocated:      moneyString(c.Allocated),
		Remaining:      moneyString(c.Remaining),
		UtilisationPct: moneyString(c.UtilisationPct),
	}
}

func toStatusBuckets(in []reports.StatusBucket) []BucketDTO {
	out := make([]BucketDTO, len(in))
	for i, b := range in {
		out[i] = BucketDTO{Key: b.Status, Count: b.Count, Amount: moneyString(b.Amount)}
	}
	return out
}

func toMethodBuckets(in []reports.MethodBucket) []BucketDTO {
	out := make([]BucketDTO, len(in))
	for i, b := range in {
		out[i] = BucketDTO{Key: b.Method, Count: b.Count, Amount: moneyString(b.Amount)}
	}
	return out
}

func mapSlice[T, D any](in []T, f func(T) D) []D {
	out := make([]D, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
