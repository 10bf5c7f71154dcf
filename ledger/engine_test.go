package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scholarship-ledger/ledger"
	"github.com/warp/scholarship-ledger/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *sqlstore.Store) {
	store, err := sqlstore.New(sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewEngine(store, zerolog.Nop()), store
}

// newFileEngine opens a file database so concurrent callers get their own
// connections and contend on SQLite's write lock.
func newFileEngine(t *testing.T) (*ledger.Engine, *sqlstore.Store) {
	store, err := sqlstore.New(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewEngine(store, zerolog.Nop()), store
}

var backends = []struct {
	name string
	open func(t *testing.T) (*ledger.Engine, *sqlstore.Store)
}{
	{"memory", newTestEngine},
	{"file", newFileEngine},
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "want %s, got %s", want, got.String())
}

func mustAlumni(t *testing.T, e *ledger.Engine) ledger.AlumniProfile {
	t.Helper()
	a, err := e.CreateAlumni(context.Background(), ledger.CreateAlumniInput{Name: "Ada Lovelace", Email: "ada@example.org", GraduationYear: 2010})
	require.NoError(t, err)
	return a
}

func mustFund(t *testing.T, e *ledger.Engine, amount string) ledger.ProgramFund {
	t.Helper()
	f, err := e.CreateFund(context.Background(), ledger.CreateFundInput{Name: "Travel grants", Category: "scholarships", Amount: money(amount)})
	require.NoError(t, err)
	return f
}

func mustPledge(t *testing.T, e *ledger.Engine, a ledger.AlumniID, amount string) ledger.Pledge {
	t.Helper()
	p, err := e.CreatePledge(context.Background(), ledger.CreatePledgeInput{AlumniID: a, Amount: money(amount), Currency: "USD"})
	require.NoError(t, err)
	return p
}

func mustPayment(t *testing.T, e *ledger.Engine, a ledger.AlumniID, pledge *ledger.PledgeID, amount string) ledger.Payment {
	t.Helper()
	p, err := e.AddPayment(context.Background(), ledger.AddPaymentInput{
		AlumniID: a, Amount: money(amount), Method: ledger.MethodManual, PledgeID: pledge,
	})
	require.NoError(t, err)
	return p
}

func verify(e *ledger.Engine, id ledger.PaymentID, decision ledger.PaymentStatus) (ledger.Payment, error) {
	return e.VerifyPayment(context.Background(), ledger.VerifyPaymentInput{
		PaymentID: id, VerifierID: "staff-1", Decision: decision,
	})
}

func reload(t *testing.T, s *sqlstore.Store, id ledger.AlumniID) ledger.AlumniProfile {
	t.Helper()
	a, err := s.GetAlumni(context.Background(), id)
	require.NoError(t, err)
	return a
}

func reloadFund(t *testing.T, s *sqlstore.Store, id ledger.FundID) ledger.ProgramFund {
	t.Helper()
	f, err := s.GetFund(context.Background(), id)
	require.NoError(t, err)
	return f
}

// =============================================================================
// PLEDGES
// =============================================================================

func TestCreatePledge_AddsToTotalPledged(t *testing.T) {
	// GIVEN: An alumnus with no pledges
	// WHEN: Pledging 500 USD
	// THEN: Pledge is pending and totalPledged grows by exactly 500

	e, s := newTestEngine(t)
	a := mustAlumni(t, e)

	p := mustPledge(t, e, a.ID, "500")

	assert.Equal(t, ledger.PledgePending, p.Status)
	assert.Equal(t, "USD", p.Currency)
	assertMoney(t, "500", reload(t, s, a.ID).TotalPledged)

	entries, err := s.ListEntries(context.Background(), ledger.EntryFilter{SubjectID: string(p.ID)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryPledgeCreated, entries[0].Kind)
}

func TestCreatePledge_DefaultsCurrency(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustAlumni(t, e)

	p, err := e.CreatePledge(context.Background(), ledger.CreatePledgeInput{AlumniID: a.ID, Amount: money("1")})
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultCurrency, p.Currency)
}

func TestCreatePledge_InvalidAmount_NothingWritten(t *testing.T) {
	e, s := newTestEngine(t)
	a := mustAlumni(t, e)

	for _, amt := range []string{"0", "-5", "10.001"} {
		_, err := e.CreatePledge(context.Background(), ledger.CreatePledgeInput{AlumniID: a.ID, Amount: money(amt)})
		var verr *ledger.ValidationError
		require.ErrorAs(t, err, &verr, "amount %s", amt)
		assert.Contains(t, verr.FieldMap(), "amount")
	}

	assertMoney(t, "0", reload(t, s, a.ID).TotalPledged)
	pledges, err := s.ListPledges(context.Background(), ledger.PledgeFilter{})
	require.NoError(t, err)
	assert.Empty(t, pledges)
}

func TestCreatePledge_UnknownAlumni_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreatePledge(context.Background(), ledger.CreatePledgeInput{AlumniID: "ghost", Amount: money("10")})
	assert.True(t, ledger.IsNotFound(err))
}

func TestUpdatePledgeStatus_FollowsStateTable(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "100")

	// pending -> fulfilled is only reachable through a verified payment
	_, err := e.UpdatePledgeStatus(ctx, ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: ledger.PledgeFulfilled})
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	confirmed, err := e.UpdatePledgeStatus(ctx, ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: ledger.PledgeConfirmed})
	require.NoError(t, err)
	assert.Equal(t, ledger.PledgeConfirmed, confirmed.Status)

	fulfilled, err := e.UpdatePledgeStatus(ctx, ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: ledger.PledgeFulfilled, Notes: "paid offline"})
	require.NoError(t, err)
	assert.NotNil(t, fulfilled.FulfillmentDate)
	assert.Equal(t, "paid offline", fulfilled.Notes)

	cancelled, err := e.UpdatePledgeStatus(ctx, ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: ledger.PledgeCancelled})
	require.NoError(t, err)
	assert.Equal(t, ledger.PledgeCancelled, cancelled.Status)

	_, err = e.UpdatePledgeStatus(ctx, ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: ledger.PledgeConfirmed})
	var terr *ledger.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "cancelled", terr.From)

	// status changes never touch balances
	a2 := reload(t, s, a.ID)
	assertMoney(t, "100", a2.TotalPledged)
	assertMoney(t, "0", a2.TotalContributed)
}

func TestUpdatePledgeStatus_UnknownStatus_ValidationError(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "100")

	_, err := e.UpdatePledgeStatus(context.Background(), ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: "paid"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestVerifyPayment_FulfilsPledgeAndCounts(t *testing.T) {
	// GIVEN: A pledge of 500 and a pending manual payment of 500 linked to it
	// WHEN: Staff verify the payment
	// THEN: Payment verified, totalContributed += 500, pledge fulfilled

	e, s := newTestEngine(t)
	ctx := context.Background()
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "500")

	pay := mustPayment(t, e, a.ID, &p.ID, "500")
	assert.Equal(t, ledger.PaymentPending, pay.Status)
	// pending payments don't count
	assertMoney(t, "0", reload(t, s, a.ID).TotalContributed)

	verified, err := verify(e, pay.ID, ledger.PaymentVerified)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentVerified, verified.Status)
	assert.Equal(t, "staff-1", verified.VerifiedBy)
	assert.NotNil(t, verified.VerifiedAt)

	assertMoney(t, "500", reload(t, s, a.ID).TotalContributed)

	pledge, err := s.GetPledge(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PledgeFulfilled, pledge.Status)
	assert.NotNil(t, pledge.FulfillmentDate)
}

func TestVerifyPayment_Rejected_NoBalanceChange(t *testing.T) {
	e, s := newTestEngine(t)
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "500")
	pay := mustPayment(t, e, a.ID, &p.ID, "500")

	rejected, err := verify(e, pay.ID, ledger.PaymentRejected)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentRejected, rejected.Status)
	assertMoney(t, "0", reload(t, s, a.ID).TotalContributed)

	pledge, err := s.GetPledge(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PledgePending, pledge.Status)

	// rejected is terminal
	_, err = verify(e, pay.ID, ledger.PaymentVerified)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestVerifyPayment_Replay_CountedOnce(t *testing.T) {
	e, s := newTestEngine(t)
	a := mustAlumni(t, e)
	pay := mustPayment(t, e, a.ID, nil, "75.25")

	_, err := verify(e, pay.ID, ledger.PaymentVerified)
	require.NoError(t, err)

	again, err := verify(e, pay.ID, ledger.PaymentVerified)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assert.Equal(t, ledger.PaymentVerified, again.Status)

	assertMoney(t, "75.25", reload(t, s, a.ID).TotalContributed)
}

func TestVerifyPayment_Concurrent_CountedOnce(t *testing.T) {
	// GIVEN: One pending payment
	// WHEN: Staff UI and gateway webhook verify it at the same time
	// THEN: Exactly one verification wins; the total is incremented once

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			e, s := b.open(t)
			a := mustAlumni(t, e)
			pay := mustPayment(t, e, a.ID, nil, "200")

			const n = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := verify(e, pay.ID, ledger.PaymentVerified)
					if err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
						return
					}
					assert.True(t, errors.Is(err, ledger.ErrAlreadyProcessed) || ledger.IsRetryable(err), "unexpected error: %v", err)
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assertMoney(t, "200", reload(t, s, a.ID).TotalContributed)

			entries, err := s.ListEntries(context.Background(), ledger.EntryFilter{Kind: ledger.EntryPaymentVerified})
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestVerifyPayment_CancelledPledge_RollsBackEverything(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "100")
	pay := mustPayment(t, e, a.ID, &p.ID, "100")

	_, err := e.UpdatePledgeStatus(ctx, ledger.UpdatePledgeStatusInput{PledgeID: p.ID, Status: ledger.PledgeCancelled})
	require.NoError(t, err)

	_, err = verify(e, pay.ID, ledger.PaymentVerified)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	stored, err := s.GetPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPending, stored.Status, "payment status must roll back with the pledge")
	assertMoney(t, "0", reload(t, s, a.ID).TotalContributed)
}

func TestVerifyPayment_AlreadyFulfilledPledge_StillCounts(t *testing.T) {
	e, s := newTestEngine(t)
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "100")
	first := mustPayment(t, e, a.ID, &p.ID, "60")
	second := mustPayment(t, e, a.ID, &p.ID, "40")

	_, err := verify(e, first.ID, ledger.PaymentVerified)
	require.NoError(t, err)
	_, err = verify(e, second.ID, ledger.PaymentVerified)
	require.NoError(t, err)

	assertMoney(t, "100", reload(t, s, a.ID).TotalContributed)
}

func TestAddPayment_PledgeOfAnotherAlumnus_Rejected(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustAlumni(t, e)
	b := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "100")

	_, err := e.AddPayment(context.Background(), ledger.AddPaymentInput{
		AlumniID: b.ID, Amount: money("100"), Method: ledger.MethodCard, PledgeID: &p.ID,
	})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "pledge_id")
}

func TestAddPayment_DuplicateGatewayRef_ValidationError(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustAlumni(t, e)
	in := ledger.AddPaymentInput{AlumniID: a.ID, Amount: money("10"), Method: ledger.MethodStripe, GatewayRef: "pi_1"}

	_, err := e.AddPayment(context.Background(), in)
	require.NoError(t, err)
	_, err = e.AddPayment(context.Background(), in)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "gateway_ref")
}

func TestAddPayment_UnknownMethod_ValidationError(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustAlumni(t, e)
	_, err := e.AddPayment(context.Background(), ledger.AddPaymentInput{AlumniID: a.ID, Amount: money("10"), Method: "bitcoin"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestReversePayment_CompensatesContribution(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	a := mustAlumni(t, e)
	p := mustPledge(t, e, a.ID, "300")
	pay := mustPayment(t, e, a.ID, &p.ID, "300")
	_, err := verify(e, pay.ID, ledger.PaymentVerified)
	require.NoError(t, err)

	reversed, err := e.ReversePayment(ctx, ledger.ReversePaymentInput{PaymentID: pay.ID, ActorID: "admin-1", Reason: "chargeback"})
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentReversed, reversed.Status)
	assertMoney(t, "0", reload(t, s, a.ID).TotalContributed)

	// the pledge keeps its fulfilled status
	pledge, err := s.GetPledge(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PledgeFulfilled, pledge.Status)

	_, err = e.ReversePayment(ctx, ledger.ReversePaymentInput{PaymentID: pay.ID, ActorID: "admin-1", Reason: "again"})
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assertMoney(t, "0", reload(t, s, a.ID).TotalContributed)
}

func TestReversePayment_PendingPayment_InvalidTransition(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustAlumni(t, e)
	pay := mustPayment(t, e, a.ID, nil, "10")

	_, err := e.ReversePayment(context.Background(), ledger.ReversePaymentInput{PaymentID: pay.ID, ActorID: "admin-1", Reason: "oops"})
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

// =============================================================================
// FUNDS
// =============================================================================

func TestCreateExpense_ExceedsRemaining_FundUnchanged(t *testing.T) {
	// GIVEN: Fund{amount=1000, allocated=0, remaining=1000}
	// WHEN: Recording an expense of 1200
	// THEN: InsufficientFunds, fund untouched

	e, s := newTestEngine(t)
	f := mustFund(t, e, "1000")

	_, err := e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		FundID: f.ID, Amount: money("1200"), Description: "laptops", ActorID: "staff-1",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assertMoney(t, "200", ife.Shortfall())

	after := reloadFund(t, s, f.ID)
	assertMoney(t, "0", after.AllocatedAmount)
	assertMoney(t, "1000", after.RemainingAmount)
	assert.Equal(t, f.Version, after.Version)
}

func TestCreateExpense_SequentialAllocations(t *testing.T) {
	// GIVEN: Fund{amount=1000, remaining=1000}
	// WHEN: Two expenses of 400
	// THEN: remaining=200, allocated=800

	e, s := newTestEngine(t)
	f := mustFund(t, e, "1000")

	for i := 0; i < 2; i++ {
		_, err := e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
			FundID: f.ID, Amount: money("400"), Description: "books", ActorID: "staff-1",
		})
		require.NoError(t, err)
	}

	after := reloadFund(t, s, f.ID)
	assertMoney(t, "800", after.AllocatedAmount)
	assertMoney(t, "200", after.RemainingAmount)
	assert.True(t, after.Balanced())
}

func TestCreateExpense_ExactRemaining_Allowed(t *testing.T) {
	e, s := newTestEngine(t)
	f := mustFund(t, e, "250.50")

	_, err := e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		FundID: f.ID, Amount: money("250.50"), Description: "venue", ActorID: "staff-1",
	})
	require.NoError(t, err)
	assertMoney(t, "0", reloadFund(t, s, f.ID).RemainingAmount)

	_, err = e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		FundID: f.ID, Amount: money("0.01"), Description: "stamp", ActorID: "staff-1",
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestCreateExpense_InactiveFund_Refused(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	f := mustFund(t, e, "100")

	_, err := e.SetFundActive(ctx, f.ID, false)
	require.NoError(t, err)

	_, err = e.CreateExpense(ctx, ledger.CreateExpenseInput{FundID: f.ID, Amount: money("1"), Description: "x", ActorID: "staff-1"})
	assert.ErrorIs(t, err, ledger.ErrFundInactive)
	assert.True(t, ledger.IsClientError(err))
}

func TestCreateExpense_ConcurrentDraws_NeverOverdraw(t *testing.T) {
	// GIVEN: A fund of 1000
	// WHEN: Ten concurrent expenses of 300
	// THEN: At most three commit, remaining never goes negative

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			e, s := b.open(t)
			f := mustFund(t, e, "1000")

			const n = 10
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
						FundID: f.ID, Amount: money("300"), Description: "grant", ActorID: "staff-1",
					})
					if err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
						return
					}
					assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds) || ledger.IsRetryable(err), "unexpected error: %v", err)
				}()
			}
			wg.Wait()

			after := reloadFund(t, s, f.ID)
			assert.LessOrEqual(t, successes, 3)
			assertMoney(t, decimal.NewFromInt(int64(300*successes)).String(), after.AllocatedAmount)
			assert.False(t, after.RemainingAmount.IsNegative())
			assert.True(t, after.Balanced())

			expenses, err := s.ListExpenses(context.Background(), f.ID)
			require.NoError(t, err)
			assert.Len(t, expenses, successes)
		})
	}
}

func TestCreateExpense_FileDB_OnlyOneOfTwentyFits(t *testing.T) {
	// GIVEN: A file-backed fund of 100.00
	// WHEN: Twenty goroutines each draw 60.00 on separate connections
	// THEN: Exactly one commits and 40.00 remains

	e, s := newFileEngine(t)
	f := mustFund(t, e, "100.00")

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
				FundID: f.ID, Amount: money("60.00"), Description: "grant", ActorID: "staff-1",
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds) || ledger.IsRetryable(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	after := reloadFund(t, s, f.ID)
	assertMoney(t, "60.00", after.AllocatedAmount)
	assertMoney(t, "40.00", after.RemainingAmount)
	assert.True(t, after.Balanced())
}

func TestCreateExpense_KeepsProvidedDate(t *testing.T) {
	e, _ := newTestEngine(t)
	f := mustFund(t, e, "100")
	date := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

	x, err := e.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		FundID: f.ID, Amount: money("10"), Description: "x", ExpenseDate: &date, ActorID: "staff-1",
	})
	require.NoError(t, err)
	assert.True(t, date.Equal(x.ExpenseDate))
}

func TestCreateEvent_WithFund_AllocatesAndFunds(t *testing.T) {
	e, s := newTestEngine(t)
	f := mustFund(t, e, "1000")

	ev, err := e.CreateEvent(context.Background(), ledger.CreateEventInput{
		Name: "Homecoming", RequiredFunds: money("650"), FundID: &f.ID, ActorID: "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.EventFunded, ev.Status)

	after := reloadFund(t, s, f.ID)
	assertMoney(t, "650", after.AllocatedAmount)
	assertMoney(t, "350", after.RemainingAmount)

	_, err = e.CreateEvent(context.Background(), ledger.CreateEventInput{
		Name: "Gala", RequiredFunds: money("400"), FundID: &f.ID, ActorID: "staff-1",
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	events, err := s.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateEvent_WithoutFund_StaysPlanning(t *testing.T) {
	e, _ := newTestEngine(t)
	ev, err := e.CreateEvent(context.Background(), ledger.CreateEventInput{
		Name: "Reunion", RequiredFunds: money("5000"), ActorID: "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.EventPlanning, ev.Status)
	assert.Nil(t, ev.FundID)
}

func TestTopUpFund_RaisesAmountAndRemaining(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	f := mustFund(t, e, "100")

	_, err := e.CreateExpense(ctx, ledger.CreateExpenseInput{FundID: f.ID, Amount: money("80"), Description: "x", ActorID: "staff-1"})
	require.NoError(t, err)

	after, err := e.TopUpFund(ctx, ledger.TopUpFundInput{FundID: f.ID, Amount: money("50"), ActorID: "admin-1"})
	require.NoError(t, err)
	assertMoney(t, "150", after.Amount)
	assertMoney(t, "80", after.AllocatedAmount)
	assertMoney(t, "70", after.RemainingAmount)
	assert.True(t, after.Balanced())
}

func TestTopUpFund_UnknownFund_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.TopUpFund(context.Background(), ledger.TopUpFundInput{FundID: "ghost", Amount: money("1"), ActorID: "admin-1"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// AMOUNT RANGE
// =============================================================================

func TestCreatePledge_OversizedAmount_NothingWritten(t *testing.T) {
	// GIVEN: An alumnus
	// WHEN: Pledging an amount whose cents do not fit in int64
	// THEN: Validation fails on amount and nothing is stored

	e, s := newTestEngine(t)
	a := mustAlumni(t, e)

	_, err := e.CreatePledge(context.Background(), ledger.CreatePledgeInput{AlumniID: a.ID, Amount: money("184467440737095516.17")})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "amount")

	assertMoney(t, "0", reload(t, s, a.ID).TotalPledged)
	pledges, err := s.ListPledges(context.Background(), ledger.PledgeFilter{})
	require.NoError(t, err)
	assert.Empty(t, pledges)
}

func TestCreatePledge_TotalWouldOverflow_Refused(t *testing.T) {
	// GIVEN: An alumnus whose totalPledged sits just under the int64 cents limit
	// WHEN: One more pledge would push it past
	// THEN: The pledge is refused with ErrAmountOutOfRange and the total is unchanged

	e, s := newTestEngine(t)
	a := mustAlumni(t, e)
	ctx := context.Background()
	near := money("92233720368547758.00")
	require.NoError(t, s.AddAlumniTotals(ctx, a.ID, near, decimal.Zero))

	_, err := e.CreatePledge(ctx, ledger.CreatePledgeInput{AlumniID: a.ID, Amount: money("1.00")})
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	assertMoney(t, near.String(), reload(t, s, a.ID).TotalPledged)
}

func TestTopUpFund_TotalWouldOverflow_Refused(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	f := mustFund(t, e, "1")
	require.NoError(t, s.TopUpFund(ctx, f.ID, money("92233720368547757.00")))

	_, err := e.TopUpFund(ctx, ledger.TopUpFundInput{FundID: f.ID, Amount: money("5.00"), ActorID: "admin-1"})
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	assertMoney(t, "92233720368547758.00", reloadFund(t, s, f.ID).Amount)
}

func TestCreateFund_OversizedAmount_Rejected(t *testing.T) {
	e, s := newTestEngine(t)

	_, err := e.CreateFund(context.Background(), ledger.CreateFundInput{Name: "Endowment", Category: "scholarships", Amount: money("184467440737095516.17")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	funds, err := s.ListFunds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, funds)
}
