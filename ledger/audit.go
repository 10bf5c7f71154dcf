package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Drift is a cached counter that disagrees with the rows it summarizes.
type Drift struct {
	Kind     string // "alumni" or "fund"
	ID       string
	Field    string
	Cached   decimal.Decimal
	Computed decimal.Decimal
}

// Audit recomputes every cached counter from the ledger rows:
//
//	alumni.total_pledged      == sum(pledges.amount)
//	alumni.total_contributed  == sum(verified payments.amount)
//	fund.allocated_amount     == sum(expenses) + sum(funded events)
//	fund.amount               == allocated + remaining, remaining >= 0
//
// All rows are read from one snapshot, so writes committed mid-audit do not
// show up as drift. An empty result means the books balance.
func (e *Engine) Audit(ctx context.Context) ([]Drift, error) {
	var (
		alumni   []AlumniProfile
		pledges  []Pledge
		payments []Payment
		funds    []ProgramFund
		events   []Event
		expenses = make(map[FundID][]Expense)
	)
	err := e.Store.ReadSnapshot(ctx, func(s Store) error {
		var err error
		if alumni, err = s.ListAlumni(ctx); err != nil {
			return err
		}
		if pledges, err = s.ListPledges(ctx, PledgeFilter{}); err != nil {
			return err
		}
		if payments, err = s.ListPayments(ctx, PaymentFilter{}); err != nil {
			return err
		}
		if funds, err = s.ListFunds(ctx); err != nil {
			return err
		}
		if events, err = s.ListEvents(ctx); err != nil {
			return err
		}
		for _, f := range funds {
			if expenses[f.ID], err = s.ListExpenses(ctx, f.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pledged := make(map[AlumniID]decimal.Decimal)
	for _, p := range pledges {
		pledged[p.AlumniID] = pledged[p.AlumniID].Add(p.Amount)
	}
	contributed := make(map[AlumniID]decimal.Decimal)
	for _, p := range payments {
		if p.Status == PaymentVerified {
			contributed[p.AlumniID] = contributed[p.AlumniID].Add(p.Amount)
		}
	}

	var drifts []Drift
	for _, a := range alumni {
		if !a.TotalPledged.Equal(pledged[a.ID]) {
			drifts = append(drifts, Drift{Kind: "alumni", ID: string(a.ID), Field: "total_pledged", Cached: a.TotalPledged, Computed: pledged[a.ID]})
		}
		if !a.TotalContributed.Equal(contributed[a.ID]) {
			drifts = append(drifts, Drift{Kind: "alumni", ID: string(a.ID), Field: "total_contributed", Cached: a.TotalContributed, Computed: contributed[a.ID]})
		}
	}

	allocated := make(map[FundID]decimal.Decimal)
	for _, ev := range events {
		if ev.FundID != nil && ev.Status == EventFunded {
			allocated[*ev.FundID] = allocated[*ev.FundID].Add(ev.RequiredFunds)
		}
	}
	for _, f := range funds {
		sum := allocated[f.ID]
		for _, x := range expenses[f.ID] {
			sum = sum.Add(x.Amount)
		}
		if !f.AllocatedAmount.Equal(sum) {
			drifts = append(drifts, Drift{Kind: "fund", ID: string(f.ID), Field: "allocated_amount", Cached: f.AllocatedAmount, Computed: sum})
		}
		if !f.Balanced() {
			drifts = append(drifts, Drift{Kind: "fund", ID: string(f.ID), Field: "remaining_amount", Cached: f.RemainingAmount, Computed: f.Amount.Sub(f.AllocatedAmount)})
		}
	}

	if len(drifts) > 0 {
		e.Logger.Error().Int("drifts", len(drifts)).Msg("ledger audit found drift")
	}
	return drifts, nil
}
