/*
Package reports provides read-only aggregates over the ledger.

PURPOSE:
  Fund utilisation by category, pledge and payment breakdowns, per-alumnus
  statements and the public transparency dashboard. Nothing here writes;
  every figure comes from Store reads, so a report never disagrees with the
  rows it was built from.

PERCENTAGES:
  Rounded to two decimals. A zero denominator yields 0, never a division
  error, so empty installations report zeros across the board.
*/
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/scholarship-ledger/ledger"
)

// Service builds reports from a ledger store.
type Service struct {
	Store ledger.Store
}

func New(store ledger.Store) *Service {
	return &Service{Store: store}
}

var hundred = decimal.NewFromInt(100)

// Percent returns part/whole*100 rounded to two places, or 0 when whole is 0.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 2)
}

// =============================================================================
// FUNDS
// =============================================================================

type CategorySummary struct {
	Category       string
	Funds          int
	ActiveFunds    int
	Amount         decimal.Decimal
	Allocated      decimal.Decimal
	Remaining      decimal.Decimal
	UtilisationPct decimal.Decimal
}

type FundReport struct {
	Categories []CategorySummary // sorted by category name
	Total      CategorySummary
}

// FundSummary groups program funds by category.
func (s *Service) FundSummary(ctx context.Context) (FundReport, error) {
	funds, err := s.Store.ListFunds(ctx)
	if err != nil {
		return FundReport{}, err
	}

	byCat := make(map[string]*CategorySummary)
	total := CategorySummary{Category: "all", Amount: decimal.Zero, Allocated: decimal.Zero, Remaining: decimal.Zero}
	for _, f := range funds {
		c, ok := byCat[f.Category]
		if !ok {
			c = &CategorySummary{Category: f.Category, Amount: decimal.Zero, Allocated: decimal.Zero, Remaining: decimal.Zero}
			byCat[f.Category] = c
		}
		for _, sum := range []*CategorySummary{c, &total} {
			sum.Funds++
			if f.IsActive {
				sum.ActiveFunds++
			}
			sum.Amount = sum.Amount.Add(f.Amount)
			sum.Allocated = sum.Allocated.Add(f.AllocatedAmount)
			sum.Remaining = sum.Remaining.Add(f.RemainingAmount)
		}
	}

	out := FundReport{Categories: make([]CategorySummary, 0, len(byCat))}
	for _, c := range byCat {
		c.UtilisationPct = Percent(c.Allocated, c.Amount)
		out.Categories = append(out.Categories, *c)
	}
	sort.Slice(out.Categories, func(i, j int) bool { return out.Categories[i].Category < out.Categories[j].Category })
	total.UtilisationPct = Percent(total.Allocated, total.Amount)
	out.Total = total
	return out, nil
}

// =============================================================================
// PLEDGES
// =============================================================================

type StatusBucket struct {
	Status string
	Count  int
	Amount decimal.Decimal
}

type PledgeReport struct {
	ByStatus       []StatusBucket // one bucket per known status, zero-filled
	Count          int
	Amount         decimal.Decimal
	FulfilledPct   decimal.Decimal // fulfilled amount over non-cancelled amount
	CancelledCount int
}

var pledgeStatuses = []ledger.PledgeStatus{
	ledger.PledgePending, ledger.PledgeConfirmed, ledger.PledgeFulfilled, ledger.PledgeCancelled,
}

// PledgeSummary aggregates pledges made within [from, to); nil bounds are open.
func (s *Service) PledgeSummary(ctx context.Context, from, to *time.Time) (PledgeReport, error) {
	pledges, err := s.Store.ListPledges(ctx, ledger.PledgeFilter{From: from, To: to})
	if err != nil {
		return PledgeReport{}, err
	}

	buckets := make(map[ledger.PledgeStatus]*StatusBucket, len(pledgeStatuses))
	out := PledgeReport{Amount: decimal.Zero, ByStatus: make([]StatusBucket, len(pledgeStatuses))}
	for i, st := range pledgeStatuses {
		out.ByStatus[i] = StatusBucket{Status: string(st), Amount: decimal.Zero}
		buckets[st] = &out.ByStatus[i]
	}

	live := decimal.Zero
	for _, p := range pledges {
		b, ok := buckets[p.Status]
		if !ok {
			continue
		}
		b.Count++
		b.Amount = b.Amount.Add(p.Amount)
		out.Count++
		out.Amount = out.Amount.Add(p.Amount)
		if p.Status != ledger.PledgeCancelled {
			live = live.Add(p.Amount)
		}
	}
	out.CancelledCount = buckets[ledger.PledgeCancelled].Count
	out.FulfilledPct = Percent(buckets[ledger.PledgeFulfilled].Amount, live)
	return out, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

type MethodBucket struct {
	Method string
	Count  int
	Amount decimal.Decimal // verified amount only
}

type PaymentReport struct {
	From, To       *time.Time
	ByStatus       []StatusBucket
	ByMethod       []MethodBucket // methods with at least one payment, sorted
	VerifiedAmount decimal.Decimal
	PendingCount   int
}

var paymentStatuses = []ledger.PaymentStatus{
	ledger.PaymentPending, ledger.PaymentVerified, ledger.PaymentRejected, ledger.PaymentReversed,
}

// PaymentSummary aggregates payments created within [from, to).
func (s *Service) PaymentSummary(ctx context.Context, from, to *time.Time) (PaymentReport, error) {
	payments, err := s.Store.ListPayments(ctx, ledger.PaymentFilter{From: from, To: to})
	if err != nil {
		return PaymentReport{}, err
	}

	out := PaymentReport{From: from, To: to, VerifiedAmount: decimal.Zero, ByStatus: make([]StatusBucket, len(paymentStatuses))}
	buckets := make(map[ledger.PaymentStatus]*StatusBucket, len(paymentStatuses))
	for i, st := range paymentStatuses {
		out.ByStatus[i] = StatusBucket{Status: string(st), Amount: decimal.Zero}
		buckets[st] = &out.ByStatus[i]
	}
	methods := make(map[ledger.PaymentMethod]*MethodBucket)

	for _, p := range payments {
		if b, ok := buckets[p.Status]; ok {
			b.Count++
			b.Amount = b.Amount.Add(p.Amount)
		}
		m, ok := methods[p.Method]
		if !ok {
			m = &MethodBucket{Method: string(p.Method), Amount: decimal.Zero}
			methods[p.Method] = m
		}
		m.Count++
		if p.Status == ledger.PaymentVerified {
			m.Amount = m.Amount.Add(p.Amount)
			out.VerifiedAmount = out.VerifiedAmount.Add(p.Amount)
		}
	}
	out.PendingCount = buckets[ledger.PaymentPending].Count

	out.ByMethod = make([]MethodBucket, 0, len(methods))
	for _, m := range methods {
		out.ByMethod = append(out.ByMethod, *m)
	}
	sort.Slice(out.ByMethod, func(i, j int) bool { return out.ByMethod[i].Method < out.ByMethod[j].Method })
	return out, nil
}

// =============================================================================
// ALUMNI STATEMENT
// =============================================================================

type Statement struct {
	Alumni   ledger.AlumniProfile
	Pledges  []ledger.Pledge
	Payments []ledger.Payment
	// Outstanding is what is still owed on non-cancelled pledges, never negative.
	Outstanding decimal.Decimal
}

func (s *Service) AlumniStatement(ctx context.Context, id ledger.AlumniID) (Statement, error) {
	a, err := s.Store.GetAlumni(ctx, id)
	if err != nil {
		return Statement{}, err
	}
	pledges, err := s.Store.ListPledges(ctx, ledger.PledgeFilter{AlumniID: id})
	if err != nil {
		return Statement{}, err
	}
	payments, err := s.Store.ListPayments(ctx, ledger.PaymentFilter{AlumniID: id})
	if err != nil {
		return Statement{}, err
	}

	owed := decimal.Zero
	for _, p := range pledges {
		if p.Status != ledger.PledgeCancelled {
			owed = owed.Add(p.Amount)
		}
	}
	owed = owed.Sub(a.TotalContributed)
	if owed.IsNegative() {
		owed = decimal.Zero
	}

	return Statement{Alumni: a, Pledges: pledges, Payments: payments, Outstanding: owed}, nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	AlumniCount       int
	TotalPledged      decimal.Decimal
	TotalContributed  decimal.Decimal
	CollectionRatePct decimal.Decimal // contributed over pledged
	PendingPayments   int
	TotalFunds        decimal.Decimal
	TotalAllocated    decimal.Decimal
	TotalRemaining    decimal.Decimal
	ActiveFunds       int
	FundedEvents      int
	UtilisationPct    decimal.Decimal
}

// Dashboard is the transparency summary shown to alumni.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	alumni, err := s.Store.ListAlumni(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	funds, err := s.FundSummary(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	pending, err := s.Store.ListPayments(ctx, ledger.PaymentFilter{Status: ledger.PaymentPending})
	if err != nil {
		return Dashboard{}, err
	}
	events, err := s.Store.ListEvents(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		AlumniCount:      len(alumni),
		TotalPledged:     decimal.Zero,
		TotalContributed: decimal.Zero,
		PendingPayments:  len(pending),
		TotalFunds:       funds.Total.Amount,
		TotalAllocated:   funds.Total.Allocated,
		TotalRemaining:   funds.Total.Remaining,
		ActiveFunds:      funds.Total.ActiveFunds,
		UtilisationPct:   funds.Total.UtilisationPct,
	}
	for _, a := range alumni {
		d.TotalPledged = d.TotalPledged.Add(a.TotalPledged)
		d.TotalContributed = d.TotalContributed.Add(a.TotalContributed)
	}
	for _, ev := range events {
		if ev.Status == ledger.EventFunded {
			d.FundedEvents++
		}
	}
	d.CollectionRatePct = Percent(d.TotalContributed, d.TotalPledged)
	return d, nil
}
