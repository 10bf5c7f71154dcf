package sqlstore

import (
	"database/sql"

	"github.com/warp/scholarship-ledger/ledger"
)

// Row types mirror the tables column for column. Money is int64 cents,
// timestamps are RFC3339 UTC text.

type alumniRow struct {
	ID               string `db:"id"`
	Name             string `db:"name"`
	Email            string `db:"email"`
	GraduationYear   int    `db:"graduation_year"`
	TotalPledged     int64  `db:"total_pledged"`
	TotalContributed int64  `db:"total_contributed"`
	CreatedAt        string `db:"created_at"`
}

func (r alumniRow) toDomain() ledger.AlumniProfile {
	return ledger.AlumniProfile{
		ID:               ledger.AlumniID(r.ID),
		Name:             r.Name,
		Email:            r.Email,
		GraduationYear:   r.GraduationYear,
		TotalPledged:     ledger.FromMinorUnits(r.TotalPledged),
		TotalContributed: ledger.FromMinorUnits(r.TotalContributed),
		CreatedAt:        parseTime(r.CreatedAt),
	}
}

type pledgeRow struct {
	ID              string         `db:"id"`
	AlumniID        string         `db:"alumni_id"`
	Amount          int64          `db:"amount"`
	Currency        string         `db:"currency"`
	Status          string         `db:"status"`
	PledgeDate      string         `db:"pledge_date"`
	FulfillmentDate sql.NullString `db:"fulfillment_date"`
	Notes           string         `db:"notes"`
}

func (r pledgeRow) toDomain() ledger.Pledge {
	return ledger.Pledge{
		ID:              ledger.PledgeID(r.ID),
		AlumniID:        ledger.AlumniID(r.AlumniID),
		Amount:          ledger.FromMinorUnits(r.Amount),
		Currency:        r.Currency,
		Status:          ledger.PledgeStatus(r.Status),
		PledgeDate:      parseTime(r.PledgeDate),
		FulfillmentDate: parseNullTime(r.FulfillmentDate),
		Notes:           r.Notes,
	}
}

type paymentRow struct {
	ID          string         `db:"id"`
	AlumniID    string         `db:"alumni_id"`
	PledgeID    sql.NullString `db:"pledge_id"`
	Amount      int64          `db:"amount"`
	Currency    string         `db:"currency"`
	Method      string         `db:"payment_method"`
	Status      string         `db:"status"`
	GatewayRef  sql.NullString `db:"gateway_ref"`
	ReceiptPath string         `db:"receipt_path"`
	Notes       string         `db:"notes"`
	VerifiedBy  string         `db:"verified_by"`
	VerifiedAt  sql.NullString `db:"verified_at"`
	CreatedAt   string         `db:"created_at"`
}

func (r paymentRow) toDomain() ledger.Payment {
	p := ledger.Payment{
		ID:          ledger.PaymentID(r.ID),
		AlumniID:    ledger.AlumniID(r.AlumniID),
		Amount:      ledger.FromMinorUnits(r.Amount),
		Currency:    r.Currency,
		Method:      ledger.PaymentMethod(r.Method),
		Status:      ledger.PaymentStatus(r.Status),
		GatewayRef:  r.GatewayRef.String,
		ReceiptPath: r.ReceiptPath,
		Notes:       r.Notes,
		VerifiedBy:  r.VerifiedBy,
		VerifiedAt:  parseNullTime(r.VerifiedAt),
		CreatedAt:   parseTime(r.CreatedAt),
	}
	if r.PledgeID.Valid {
		id := ledger.PledgeID(r.PledgeID.String)
		p.PledgeID = &id
	}
	return p
}

type fundRow struct {
	ID              string `db:"id"`
	Name            string `db:"name"`
	Category        string `db:"category"`
	Amount          int64  `db:"amount"`
	AllocatedAmount int64  `db:"allocated_amount"`
	RemainingAmount int64  `db:"remaining_amount"`
	IsActive        bool   `db:"is_active"`
	Version         int64  `db:"version"`
	CreatedAt       string `db:"created_at"`
}

func (r fundRow) toDomain() ledger.ProgramFund {
	return ledger.ProgramFund{
		ID:              ledger.FundID(r.ID),
		Name:            r.Name,
		Category:        r.Category,
		Amount:          ledger.FromMinorUnits(r.Amount),
		AllocatedAmount: ledger.FromMinorUnits(r.AllocatedAmount),
		RemainingAmount: ledger.FromMinorUnits(r.RemainingAmount),
		IsActive:        r.IsActive,
		Version:         r.Version,
		CreatedAt:       parseTime(r.CreatedAt),
	}
}

type expenseRow struct {
	ID          string `db:"id"`
	FundID      string `db:"fund_id"`
	Amount      int64  `db:"amount"`
	Description string `db:"description"`
	ExpenseDate string `db:"expense_date"`
	RecordedBy  string `db:"recorded_by"`
}

func (r expenseRow) toDomain() ledger.Expense {
	return ledger.Expense{
		ID:          ledger.ExpenseID(r.ID),
		FundID:      ledger.FundID(r.FundID),
		Amount:      ledger.FromMinorUnits(r.Amount),
		Description: r.Description,
		ExpenseDate: parseTime(r.ExpenseDate),
		RecordedBy:  r.RecordedBy,
	}
}

type eventRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	RequiredFunds int64          `db:"required_funds"`
	FundID        sql.NullString `db:"fund_id"`
	Status        string         `db:"status"`
	EventDate     sql.NullString `db:"event_date"`
	CreatedAt     string         `db:"created_at"`
}

func (r eventRow) toDomain() ledger.Event {
	ev := ledger.Event{
		ID:            ledger.EventID(r.ID),
		Name:          r.Name,
		RequiredFunds: ledger.FromMinorUnits(r.RequiredFunds),
		Status:        ledger.EventStatus(r.Status),
		EventDate:     parseNullTime(r.EventDate),
		CreatedAt:     parseTime(r.CreatedAt),
	}
	if r.FundID.Valid {
		id := ledger.FundID(r.FundID.String)
		ev.FundID = &id
	}
	return ev
}

type entryRow struct {
	ID             string `db:"id"`
	Kind           string `db:"kind"`
	SubjectID      string `db:"subject_id"`
	AlumniID       string `db:"alumni_id"`
	FundID         string `db:"fund_id"`
	Amount         int64  `db:"amount"`
	ActorID        string `db:"actor_id"`
	IdempotencyKey string `db:"idempotency_key"`
	CreatedAt      string `db:"created_at"`
}

func (r entryRow) toDomain() ledger.Entry {
	return ledger.Entry{
		ID:             r.ID,
		Kind:           ledger.EntryKind(r.Kind),
		SubjectID:      r.SubjectID,
		AlumniID:       ledger.AlumniID(r.AlumniID),
		FundID:         ledger.FundID(r.FundID),
		Amount:         ledger.FromMinorUnits(r.Amount),
		ActorID:        r.ActorID,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      parseTime(r.CreatedAt),
	}
}
