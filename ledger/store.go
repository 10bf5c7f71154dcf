/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the boundary between the Engine and the database. Any relational
  store that offers atomic increments, conditional updates with an
  affected-row count and multi-statement transactions can implement it.

WRITE DISCIPLINE:
  - AddAlumniTotals: "col = col + ?" increments, never read-then-write
  - UpdatePledgeStatus / UpdatePaymentStatus: conditional on the status the
    caller read; zero rows affected -> ErrConcurrentModification
  - AllocateFromFund: conditional on version, activity and remaining >= x;
    zero rows affected -> ErrConcurrentModification
  - AppendEntry: unique idempotency key -> ErrDuplicateIdempotencyKey

IMPLEMENTATIONS:
  - store/sqlstore: SQLite (default) and PostgreSQL
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence of ledger records.
// Lookups of a missing id return a *NotFoundError.
type Store interface {
	CreateAlumni(ctx context.Context, a AlumniProfile) error
	GetAlumni(ctx context.Context, id AlumniID) (AlumniProfile, error)
	ListAlumni(ctx context.Context) ([]AlumniProfile, error)
	// AddAlumniTotals atomically adds the deltas to the cached counters.
	AddAlumniTotals(ctx context.Context, id AlumniID, pledged, contributed decimal.Decimal) error

	InsertPledge(ctx context.Context, p Pledge) error
	GetPledge(ctx context.Context, id PledgeID) (Pledge, error)
	ListPledges(ctx context.Context, f PledgeFilter) ([]Pledge, error)
	UpdatePledgeStatus(ctx context.Context, u PledgeStatusUpdate) error

	// InsertPayment returns ErrDuplicateIdempotencyKey when the gateway
	// reference is already recorded.
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	GetPaymentByGatewayRef(ctx context.Context, ref string) (Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
	UpdatePaymentStatus(ctx context.Context, u PaymentStatusUpdate) error

	InsertFund(ctx context.Context, f ProgramFund) error
	GetFund(ctx context.Context, id FundID) (ProgramFund, error)
	ListFunds(ctx context.Context) ([]ProgramFund, error)
	// AllocateFromFund moves amount from remaining to allocated if the fund
	// is still at expectedVersion, active, and has enough left.
	AllocateFromFund(ctx context.Context, id FundID, amount decimal.Decimal, expectedVersion int64) error
	TopUpFund(ctx context.Context, id FundID, amount decimal.Decimal) error
	SetFundActive(ctx context.Context, id FundID, active bool) error

	InsertExpense(ctx context.Context, e Expense) error
	ListExpenses(ctx context.Context, fundID FundID) ([]Expense, error)

	InsertEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context) ([]Event, error)

	AppendEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// ReadSnapshot executes fn within a transaction whose reads all see
	// the same committed state.
	ReadSnapshot(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// UPDATES AND FILTERS
// =============================================================================

type PledgeStatusUpdate struct {
	ID          PledgeID
	From        PledgeStatus
	To          PledgeStatus
	FulfilledAt *time.Time // set only when moving to fulfilled
	Notes       string
}

type PaymentStatusUpdate struct {
	ID      PaymentID
	From    PaymentStatus
	To      PaymentStatus
	ActorID string
	At      time.Time
	Notes   string
}

// PledgeFilter selects pledges. Zero fields don't filter.
type PledgeFilter struct {
	AlumniID AlumniID
	Status   PledgeStatus
	From     *time.Time
	To       *time.Time
}

// PaymentFilter selects payments by creation time and attributes.
type PaymentFilter struct {
	AlumniID AlumniID
	PledgeID PledgeID
	Status   PaymentStatus
	Method   PaymentMethod
	From     *time.Time
	To       *time.Time
}

type EntryFilter struct {
	Kind      EntryKind
	SubjectID string
	AlumniID  AlumniID
	FundID    FundID
}
