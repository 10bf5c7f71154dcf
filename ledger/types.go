/*
Package ledger provides the pledge, payment and fund reconciliation engine.

PURPOSE:
  Alumni pledge money, pay it (by card, transfer, cash...), staff verify the
  payments, and program funds are drawn down by expenses and events. This
  package holds the entities, the validation layer and the Engine that moves
  money between them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amount with at most two fractional digits
  - AlumniProfile: cached pledged/contributed totals
  - Pledge / Payment: status-driven records owned by an alumnus
  - ProgramFund / Expense / Event: budget envelope and its allocations
  - Entry: append-only audit row written for every balance change

COUNTERS:
  TotalPledged, TotalContributed, AllocatedAmount and RemainingAmount are
  denormalized counters. They are never written with read-modify-write;
  the Store applies them as atomic increments or conditional updates, and
  Engine.Audit recomputes them from the ledger rows to detect drift.

SEE ALSO:
  - engine.go: Reconciliation operations
  - transitions.go: Pledge and payment state tables
  - store.go: Persistence interface
*/
package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyScale is the number of fractional digits money is stored with.
const MoneyScale = 2

// DefaultCurrency is used when a pledge or payment omits its currency.
const DefaultCurrency = "USD"

// MaxAmount caps any single pledge, payment, fund or expense amount.
var MaxAmount = decimal.New(1, 12)

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// ToMinorUnits converts an amount to integer cents. Amounts whose cents
// don't fit in an int64 return ErrAmountOutOfRange.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	c := d.Shift(MoneyScale).Round(0)
	if c.GreaterThan(maxMinorUnits) || c.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}
	return c.IntPart(), nil
}

// FromMinorUnits converts integer cents back to a decimal amount.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -MoneyScale)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AlumniID string
type PledgeID string
type PaymentID string
type FundID string
type ExpenseID string
type EventID string

// =============================================================================
// ALUMNI
// =============================================================================

type AlumniProfile struct {
	ID               AlumniID
	Name             string
	Email            string
	GraduationYear   int
	TotalPledged     decimal.Decimal
	TotalContributed decimal.Decimal
	CreatedAt        time.Time
}

// =============================================================================
// PLEDGE
// =============================================================================

type PledgeStatus string

const (
	PledgePending   PledgeStatus = "pending"
	PledgeConfirmed PledgeStatus = "confirmed"
	PledgeFulfilled PledgeStatus = "fulfilled"
	PledgeCancelled PledgeStatus = "cancelled"
)

type Pledge struct {
	ID              PledgeID
	AlumniID        AlumniID
	Amount          decimal.Decimal
	Currency        string
	Status          PledgeStatus
	PledgeDate      time.Time
	FulfillmentDate *time.Time
	Notes           string
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodManual       PaymentMethod = "manual"
	MethodStripe       PaymentMethod = "stripe"
	MethodCash         PaymentMethod = "cash"
	MethodCheck        PaymentMethod = "check"
	MethodOther        PaymentMethod = "other"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
	PaymentReversed PaymentStatus = "reversed" // compensates a verified payment (refund, chargeback)
)

type Payment struct {
	ID          PaymentID
	AlumniID    AlumniID
	PledgeID    *PledgeID
	Amount      decimal.Decimal
	Currency    string
	Method      PaymentMethod
	Status      PaymentStatus
	GatewayRef  string // gateway transaction id, unique when set
	ReceiptPath string
	Notes       string
	VerifiedBy  string
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// =============================================================================
// PROGRAM FUND
// =============================================================================

type ProgramFund struct {
	ID              FundID
	Name            string
	Category        string
	Amount          decimal.Decimal
	AllocatedAmount decimal.Decimal
	RemainingAmount decimal.Decimal
	IsActive        bool
	Version         int64 // bumped on every balance change
	CreatedAt       time.Time
}

// Balanced reports whether amount == allocated + remaining and remaining >= 0.
func (f ProgramFund) Balanced() bool {
	return f.Amount.Equal(f.AllocatedAmount.Add(f.RemainingAmount)) && !f.RemainingAmount.IsNegative()
}

type Expense struct {
	ID          ExpenseID
	FundID      FundID
	Amount      decimal.Decimal
	Description string
	ExpenseDate time.Time
	RecordedBy  string
}

type EventStatus string

const (
	EventPlanning EventStatus = "planning"
	EventFunded   EventStatus = "funded"
)

type Event struct {
	ID            EventID
	Name          string
	RequiredFunds decimal.Decimal
	FundID        *FundID
	Status        EventStatus
	EventDate     *time.Time
	CreatedAt     time.Time
}

// =============================================================================
// ENTRY - Append-only record of a balance change
// =============================================================================

type EntryKind string

const (
	EntryPledgeCreated   EntryKind = "pledge_created"
	EntryPaymentVerified EntryKind = "payment_verified"
	EntryPaymentReversed EntryKind = "payment_reversed"
	EntryExpenseRecorded EntryKind = "expense_recorded"
	EntryEventFunded     EntryKind = "event_funded"
	EntryFundToppedUp    EntryKind = "fund_topped_up"
)

// Entry is written in the same transaction as the balance change it
// describes. The idempotency key is unique, so a replayed operation can
// never count the same money twice.
type Entry struct {
	ID             string
	Kind           EntryKind
	SubjectID      string
	AlumniID       AlumniID
	FundID         FundID
	Amount         decimal.Decimal
	ActorID        string
	IdempotencyKey string
	CreatedAt      time.Time
}
