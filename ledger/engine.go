/*
engine.go - Reconciliation engine

PURPOSE:
  The only code path that changes a status or a balance. Every operation
  validates its input, runs inside one store transaction, and appends an
  Entry with an idempotency key next to the balance change, so either all
  of it persists or none of it does.

OPERATIONS:
  CreatePledge        insert pending pledge, totalPledged += amount
  UpdatePledgeStatus  state-table checked transition, no balance change
  AddPayment          insert pending payment, no balance change
  VerifyPayment       verified: totalContributed += amount, pledge fulfilled
                      rejected: status only
  ReversePayment      verified -> reversed, totalContributed -= amount
  CreateExpense       allocate from fund, insert expense
  CreateEvent         allocate from fund (if any), insert event
  CreateFund, TopUpFund, SetFundActive, CreateAlumni

SINGLE PATH:
  The webhook adapter and the staff API both call VerifyPayment. There is no
  second implementation of the contributed-total update anywhere.

SEE ALSO:
  - validate.go: inputs and CheckAllocation
  - transitions.go: state tables
  - audit.go: drift detection over the cached counters
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine applies ledger operations against a transactional store.
type Engine struct {
	Store           TxStore
	Logger          zerolog.Logger
	DefaultCurrency string
	Now             func() time.Time
	NewID           func() string
}

// NewEngine creates an engine with UUID ids and the wall clock.
func NewEngine(store TxStore, logger zerolog.Logger) *Engine {
	return &Engine{
		Store:           store,
		Logger:          logger,
		DefaultCurrency: DefaultCurrency,
		Now:             func() time.Time { return time.Now().UTC() },
		NewID:           uuid.NewString,
	}
}

func (e *Engine) currency(c string) string {
	if c == "" {
		return e.DefaultCurrency
	}
	return c
}

// fitsCents guards running totals, which the store adds in SQL.
func fitsCents(total decimal.Decimal) error {
	_, err := ToMinorUnits(total)
	return err
}

func (e *Engine) entry(kind EntryKind, subject string, amount decimal.Decimal, actor, key string) Entry {
	return Entry{
		ID:             e.NewID(),
		Kind:           kind,
		SubjectID:      subject,
		Amount:         amount,
		ActorID:        actor,
		IdempotencyKey: key,
		CreatedAt:      e.Now(),
	}
}

// =============================================================================
// ALUMNI
// =============================================================================

func (e *Engine) CreateAlumni(ctx context.Context, in CreateAlumniInput) (AlumniProfile, error) {
	if err := Validate(in); err != nil {
		return AlumniProfile{}, err
	}
	a := AlumniProfile{
		ID:               AlumniID(e.NewID()),
		Name:             in.Name,
		Email:            in.Email,
		GraduationYear:   in.GraduationYear,
		TotalPledged:     decimal.Zero,
		TotalContributed: decimal.Zero,
		CreatedAt:        e.Now(),
	}
	if err := e.Store.CreateAlumni(ctx, a); err != nil {
		return AlumniProfile{}, fmt.Errorf("create alumni: %w", err)
	}
	return a, nil
}

// =============================================================================
// PLEDGES
// =============================================================================

// CreatePledge records a pending pledge and adds it to the alumnus' total.
func (e *Engine) CreatePledge(ctx context.Context, in CreatePledgeInput) (Pledge, error) {
	if err := Validate(in); err != nil {
		return Pledge{}, err
	}

	p := Pledge{
		ID:         PledgeID(e.NewID()),
		AlumniID:   in.AlumniID,
		Amount:     in.Amount,
		Currency:   e.currency(in.Currency),
		Status:     PledgePending,
		PledgeDate: e.Now(),
		Notes:      in.Notes,
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		a, err := s.GetAlumni(ctx, p.AlumniID)
		if err != nil {
			return err
		}
		if err := fitsCents(a.TotalPledged.Add(p.Amount)); err != nil {
			return err
		}
		if err := s.InsertPledge(ctx, p); err != nil {
			return err
		}
		if err := s.AddAlumniTotals(ctx, p.AlumniID, p.Amount, decimal.Zero); err != nil {
			return err
		}
		ent := e.entry(EntryPledgeCreated, string(p.ID), p.Amount, string(p.AlumniID), "pledge:"+string(p.ID))
		ent.AlumniID = p.AlumniID
		return s.AppendEntry(ctx, ent)
	})
	if err != nil {
		return Pledge{}, err
	}

	e.Logger.Info().
		Str("pledge_id", string(p.ID)).
		Str("alumni_id", string(p.AlumniID)).
		Str("amount", p.Amount.StringFixed(MoneyScale)).
		Msg("pledge created")
	return p, nil
}

// UpdatePledgeStatus moves a pledge along its state table. Balances are
// untouched: only verified payments change contributed totals.
func (e *Engine) UpdatePledgeStatus(ctx context.Context, in UpdatePledgeStatusInput) (Pledge, error) {
	if err := Validate(in); err != nil {
		return Pledge{}, err
	}

	var result Pledge
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPledge(ctx, in.PledgeID)
		if err != nil {
			return err
		}
		if !CanTransitionPledge(p.Status, in.Status) {
			return &TransitionError{Kind: "pledge", From: string(p.Status), To: string(in.Status)}
		}

		u := PledgeStatusUpdate{ID: p.ID, From: p.Status, To: in.Status, Notes: p.Notes}
		if in.Notes != "" {
			u.Notes = in.Notes
		}
		if in.Status == PledgeFulfilled {
			now := e.Now()
			u.FulfilledAt = &now
			p.FulfillmentDate = &now
		}
		if err := s.UpdatePledgeStatus(ctx, u); err != nil {
			return err
		}

		p.Status = u.To
		p.Notes = u.Notes
		result = p
		return nil
	})
	if err != nil {
		return Pledge{}, err
	}

	e.Logger.Info().
		Str("pledge_id", string(result.ID)).
		Str("status", string(result.Status)).
		Msg("pledge status updated")
	return result, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// AddPayment records a pending payment. Nothing is counted until it is verified.
func (e *Engine) AddPayment(ctx context.Context, in AddPaymentInput) (Payment, error) {
	if err := Validate(in); err != nil {
		return Payment{}, err
	}

	p := Payment{
		ID:          PaymentID(e.NewID()),
		AlumniID:    in.AlumniID,
		PledgeID:    in.PledgeID,
		Amount:      in.Amount,
		Currency:    e.currency(in.Currency),
		Method:      in.Method,
		Status:      PaymentPending,
		GatewayRef:  in.GatewayRef,
		ReceiptPath: in.ReceiptPath,
		Notes:       in.Notes,
		CreatedAt:   e.Now(),
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetAlumni(ctx, p.AlumniID); err != nil {
			return err
		}
		if p.PledgeID != nil {
			pledge, err := s.GetPledge(ctx, *p.PledgeID)
			if err != nil {
				return err
			}
			if pledge.AlumniID != p.AlumniID {
				return NewValidationError(FieldError{Field: "pledge_id", Message: "pledge belongs to another alumnus"})
			}
			if pledge.Status == PledgeCancelled {
				return NewValidationError(FieldError{Field: "pledge_id", Message: "pledge is cancelled"})
			}
		}
		err := s.InsertPayment(ctx, p)
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return NewValidationError(FieldError{Field: "gateway_ref", Message: "a payment with this gateway reference already exists"})
		}
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	e.Logger.Info().
		Str("payment_id", string(p.ID)).
		Str("alumni_id", string(p.AlumniID)).
		Str("method", string(p.Method)).
		Str("amount", p.Amount.StringFixed(MoneyScale)).
		Msg("payment recorded")
	return p, nil
}

// VerifyPayment applies a staff or gateway decision to a pending payment.
//
// On verified, the status change, the contributed-total increment and the
// linked pledge's fulfilment commit together. A payment that already has
// the requested decision returns the current payment with ErrAlreadyProcessed.
func (e *Engine) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (Payment, error) {
	if err := Validate(in); err != nil {
		return Payment{}, err
	}

	var result Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		result = p
		if p.Status == in.Decision {
			return ErrAlreadyProcessed
		}
		if !CanTransitionPayment(p.Status, in.Decision) {
			return &TransitionError{Kind: "payment", From: string(p.Status), To: string(in.Decision)}
		}

		now := e.Now()
		u := PaymentStatusUpdate{ID: p.ID, From: p.Status, To: in.Decision, ActorID: in.VerifierID, At: now, Notes: p.Notes}
		if in.Notes != "" {
			u.Notes = in.Notes
		}
		if err := s.UpdatePaymentStatus(ctx, u); err != nil {
			return err
		}
		p.Status = in.Decision
		p.Notes = u.Notes
		p.VerifiedBy = in.VerifierID
		p.VerifiedAt = &now
		result = p

		if in.Decision != PaymentVerified {
			return nil
		}

		a, err := s.GetAlumni(ctx, p.AlumniID)
		if err != nil {
			return err
		}
		if err := fitsCents(a.TotalContributed.Add(p.Amount)); err != nil {
			return err
		}
		if err := s.AddAlumniTotals(ctx, p.AlumniID, decimal.Zero, p.Amount); err != nil {
			return err
		}
		if p.PledgeID != nil {
			if err := e.fulfilPledge(ctx, s, *p.PledgeID, now); err != nil {
				return err
			}
		}
		ent := e.entry(EntryPaymentVerified, string(p.ID), p.Amount, in.VerifierID, "payment-verified:"+string(p.ID))
		ent.AlumniID = p.AlumniID
		return s.AppendEntry(ctx, ent)
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return result, err
	}
	if err != nil {
		return Payment{}, err
	}

	e.Logger.Info().
		Str("payment_id", string(result.ID)).
		Str("alumni_id", string(result.AlumniID)).
		Str("decision", string(result.Status)).
		Str("verifier", in.VerifierID).
		Str("amount", result.Amount.StringFixed(MoneyScale)).
		Msg("payment reviewed")
	return result, nil
}

func (e *Engine) fulfilPledge(ctx context.Context, s Store, id PledgeID, at time.Time) error {
	pledge, err := s.GetPledge(ctx, id)
	if err != nil {
		return err
	}
	apply, err := fulfilledByPayment(pledge.Status)
	if err != nil || !apply {
		return err
	}
	return s.UpdatePledgeStatus(ctx, PledgeStatusUpdate{
		ID:          pledge.ID,
		From:        pledge.Status,
		To:          PledgeFulfilled,
		FulfilledAt: &at,
		Notes:       pledge.Notes,
	})
}

// ReversePayment compensates a verified payment (refund or chargeback).
// The linked pledge keeps its status; the reversal shows up in the ledger.
func (e *Engine) ReversePayment(ctx context.Context, in ReversePaymentInput) (Payment, error) {
	if err := Validate(in); err != nil {
		return Payment{}, err
	}

	var result Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		result = p
		if p.Status == PaymentReversed {
			return ErrAlreadyProcessed
		}
		if !CanTransitionPayment(p.Status, PaymentReversed) {
			return &TransitionError{Kind: "payment", From: string(p.Status), To: string(PaymentReversed)}
		}

		u := PaymentStatusUpdate{ID: p.ID, From: p.Status, To: PaymentReversed, ActorID: in.ActorID, At: e.Now(), Notes: in.Reason}
		if err := s.UpdatePaymentStatus(ctx, u); err != nil {
			return err
		}
		if err := s.AddAlumniTotals(ctx, p.AlumniID, decimal.Zero, p.Amount.Neg()); err != nil {
			return err
		}
		p.Status = PaymentReversed
		p.Notes = in.Reason
		result = p

		ent := e.entry(EntryPaymentReversed, string(p.ID), p.Amount.Neg(), in.ActorID, "payment-reversed:"+string(p.ID))
		ent.AlumniID = p.AlumniID
		return s.AppendEntry(ctx, ent)
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return result, err
	}
	if err != nil {
		return Payment{}, err
	}

	e.Logger.Warn().
		Str("payment_id", string(result.ID)).
		Str("alumni_id", string(result.AlumniID)).
		Str("actor", in.ActorID).
		Str("amount", result.Amount.StringFixed(MoneyScale)).
		Msg("payment reversed")
	return result, nil
}

// =============================================================================
// FUNDS
// =============================================================================

func (e *Engine) CreateFund(ctx context.Context, in CreateFundInput) (ProgramFund, error) {
	if err := Validate(in); err != nil {
		return ProgramFund{}, err
	}
	f := ProgramFund{
		ID:              FundID(e.NewID()),
		Name:            in.Name,
		Category:        in.Category,
		Amount:          in.Amount,
		AllocatedAmount: decimal.Zero,
		RemainingAmount: in.Amount,
		IsActive:        true,
		CreatedAt:       e.Now(),
	}
	if err := e.Store.InsertFund(ctx, f); err != nil {
		return ProgramFund{}, fmt.Errorf("create fund: %w", err)
	}
	return f, nil
}

// TopUpFund adds money to a fund's total and remaining balance.
func (e *Engine) TopUpFund(ctx context.Context, in TopUpFundInput) (ProgramFund, error) {
	if err := Validate(in); err != nil {
		return ProgramFund{}, err
	}

	var result ProgramFund
	err := e.Store.WithTx(ctx, func(s Store) error {
		f, err := s.GetFund(ctx, in.FundID)
		if err != nil {
			return err
		}
		if err := fitsCents(f.Amount.Add(in.Amount)); err != nil {
			return err
		}
		if err := s.TopUpFund(ctx, in.FundID, in.Amount); err != nil {
			return err
		}
		ent := e.entry(EntryFundToppedUp, string(in.FundID), in.Amount, in.ActorID, "")
		ent.IdempotencyKey = "fund-topup:" + ent.ID
		ent.FundID = in.FundID
		if err := s.AppendEntry(ctx, ent); err != nil {
			return err
		}
		result, err = s.GetFund(ctx, in.FundID)
		return err
	})
	if err != nil {
		return ProgramFund{}, err
	}

	e.Logger.Info().
		Str("fund_id", string(result.ID)).
		Str("amount", in.Amount.StringFixed(MoneyScale)).
		Str("remaining", result.RemainingAmount.StringFixed(MoneyScale)).
		Msg("fund topped up")
	return result, nil
}

func (e *Engine) SetFundActive(ctx context.Context, id FundID, active bool) (ProgramFund, error) {
	var result ProgramFund
	err := e.Store.WithTx(ctx, func(s Store) error {
		if err := s.SetFundActive(ctx, id, active); err != nil {
			return err
		}
		f, err := s.GetFund(ctx, id)
		result = f
		return err
	})
	return result, err
}

// allocate draws amount from a fund inside the caller's transaction.
// The pre-check yields InsufficientFunds; if the conditional update then
// affects no rows, someone else changed the fund and the caller sees
// ErrConcurrentModification.
func (e *Engine) allocate(ctx context.Context, s Store, id FundID, amount decimal.Decimal) (ProgramFund, error) {
	f, err := s.GetFund(ctx, id)
	if err != nil {
		return ProgramFund{}, err
	}
	if err := CheckAllocation(f, amount); err != nil {
		return ProgramFund{}, err
	}
	if err := s.AllocateFromFund(ctx, f.ID, amount, f.Version); err != nil {
		return ProgramFund{}, err
	}

	f.AllocatedAmount = f.AllocatedAmount.Add(amount)
	f.RemainingAmount = f.RemainingAmount.Sub(amount)
	f.Version++
	if !f.Balanced() {
		return ProgramFund{}, fmt.Errorf("fund %s out of balance after allocation", f.ID)
	}
	return f, nil
}

// CreateExpense records spending against a fund.
func (e *Engine) CreateExpense(ctx context.Context, in CreateExpenseInput) (Expense, error) {
	if err := Validate(in); err != nil {
		return Expense{}, err
	}

	x := Expense{
		ID:          ExpenseID(e.NewID()),
		FundID:      in.FundID,
		Amount:      in.Amount,
		Description: in.Description,
		ExpenseDate: e.Now(),
		RecordedBy:  in.ActorID,
	}
	if in.ExpenseDate != nil {
		x.ExpenseDate = in.ExpenseDate.UTC()
	}

	var fund ProgramFund
	err := e.Store.WithTx(ctx, func(s Store) error {
		f, err := e.allocate(ctx, s, x.FundID, x.Amount)
		if err != nil {
			return err
		}
		fund = f
		if err := s.InsertExpense(ctx, x); err != nil {
			return err
		}
		ent := e.entry(EntryExpenseRecorded, string(x.ID), x.Amount, in.ActorID, "expense:"+string(x.ID))
		ent.FundID = x.FundID
		return s.AppendEntry(ctx, ent)
	})
	if err != nil {
		return Expense{}, err
	}

	e.Logger.Info().
		Str("expense_id", string(x.ID)).
		Str("fund_id", string(x.FundID)).
		Str("amount", x.Amount.StringFixed(MoneyScale)).
		Str("remaining", fund.RemainingAmount.StringFixed(MoneyScale)).
		Msg("expense recorded")
	return x, nil
}

// CreateEvent plans an event. With a fund it is funded immediately through
// the same allocation path as expenses; without one it stays in planning.
func (e *Engine) CreateEvent(ctx context.Context, in CreateEventInput) (Event, error) {
	if err := Validate(in); err != nil {
		return Event{}, err
	}

	ev := Event{
		ID:            EventID(e.NewID()),
		Name:          in.Name,
		RequiredFunds: in.RequiredFunds,
		FundID:        in.FundID,
		Status:        EventPlanning,
		EventDate:     in.EventDate,
		CreatedAt:     e.Now(),
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		if ev.FundID == nil {
			return s.InsertEvent(ctx, ev)
		}
		if _, err := e.allocate(ctx, s, *ev.FundID, ev.RequiredFunds); err != nil {
			return err
		}
		ev.Status = EventFunded
		if err := s.InsertEvent(ctx, ev); err != nil {
			return err
		}
		ent := e.entry(EntryEventFunded, string(ev.ID), ev.RequiredFunds, in.ActorID, "event-funded:"+string(ev.ID))
		ent.FundID = *ev.FundID
		return s.AppendEntry(ctx, ent)
	})
	if err != nil {
		return Event{}, err
	}

	e.Logger.Info().
		Str("event_id", string(ev.ID)).
		Str("status", string(ev.Status)).
		Str("required_funds", ev.RequiredFunds.StringFixed(MoneyScale)).
		Msg("event created")
	return ev, nil
}
