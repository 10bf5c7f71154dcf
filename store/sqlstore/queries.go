package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/scholarship-ledger/ledger"
)

func notFound(kind, id string) error {
	return &ledger.NotFoundError{Kind: kind, ID: id}
}

// cents converts amounts to BIGINT minor units, refusing any that overflow.
func cents(amounts ...decimal.Decimal) ([]int64, error) {
	out := make([]int64, len(amounts))
	for i, d := range amounts {
		v, err := ledger.ToMinorUnits(d)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// exists distinguishes "row missing" from "row changed" after a conditional
// update affected nothing.
func (c *conn) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := c.get(ctx, &n, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id)
	return n > 0, err
}

func (c *conn) missingOrConflict(ctx context.Context, table, kind, id string) error {
	ok, err := c.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(kind, id)
	}
	return ledger.ErrConcurrentModification
}

// =============================================================================
// ALUMNI
// =============================================================================

func (c *conn) CreateAlumni(ctx context.Context, a ledger.AlumniProfile) error {
	m, err := cents(a.TotalPledged, a.TotalContributed)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO alumni (id, name, email, graduation_year, total_pledged, total_contributed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Email, a.GraduationYear,
		m[0], m[1], formatTime(a.CreatedAt),
	)
	return err
}

func (c *conn) GetAlumni(ctx context.Context, id ledger.AlumniID) (ledger.AlumniProfile, error) {
	var r alumniRow
	err := c.get(ctx, &r, "SELECT * FROM alumni WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.AlumniProfile{}, notFound("alumni", string(id))
	}
	if err != nil {
		return ledger.AlumniProfile{}, err
	}
	return r.toDomain(), nil
}

func (c *conn) ListAlumni(ctx context.Context) ([]ledger.AlumniProfile, error) {
	var rows []alumniRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM alumni ORDER BY created_at, id"); err != nil {
		return nil, err
	}
	out := make([]ledger.AlumniProfile, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (c *conn) AddAlumniTotals(ctx context.Context, id ledger.AlumniID, pledged, contributed decimal.Decimal) error {
	m, err := cents(pledged, contributed)
	if err != nil {
		return err
	}
	n, err := c.exec(ctx, `
		UPDATE alumni
		SET total_pledged = total_pledged + ?, total_contributed = total_contributed + ?
		WHERE id = ?`,
		m[0], m[1], id,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("alumni", string(id))
	}
	return nil
}

// =============================================================================
// PLEDGES
// =============================================================================

func (c *conn) InsertPledge(ctx context.Context, p ledger.Pledge) error {
	m, err := cents(p.Amount)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO pledges (id, alumni_id, amount, currency, status, pledge_date, fulfillment_date, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AlumniID, m[0], p.Currency, p.Status,
		formatTime(p.PledgeDate), nullTime(p.FulfillmentDate), p.Notes,
	)
	return err
}

func (c *conn) GetPledge(ctx context.Context, id ledger.PledgeID) (ledger.Pledge, error) {
	var r pledgeRow
	err := c.get(ctx, &r, "SELECT * FROM pledges WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Pledge{}, notFound("pledge", string(id))
	}
	if err != nil {
		return ledger.Pledge{}, err
	}
	return r.toDomain(), nil
}

func (c *conn) ListPledges(ctx context.Context, f ledger.PledgeFilter) ([]ledger.Pledge, error) {
	var w where
	if f.AlumniID != "" {
		w.add("alumni_id = ?", f.AlumniID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.From != nil {
		w.add("pledge_date >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		w.add("pledge_date < ?", formatTime(*f.To))
	}

	var rows []pledgeRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM pledges"+w.String()+" ORDER BY pledge_date, id", w.args...); err != nil {
		return nil, err
	}
	out := make([]ledger.Pledge, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (c *conn) UpdatePledgeStatus(ctx context.Context, u ledger.PledgeStatusUpdate) error {
	n, err := c.exec(ctx, `
		UPDATE pledges
		SET status = ?, notes = ?, fulfillment_date = COALESCE(?, fulfillment_date)
		WHERE id = ? AND status = ?`,
		u.To, u.Notes, nullTime(u.FulfilledAt), u.ID, u.From,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return c.missingOrConflict(ctx, "pledges", "pledge", string(u.ID))
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (c *conn) InsertPayment(ctx context.Context, p ledger.Payment) error {
	var pledgeID sql.NullString
	if p.PledgeID != nil {
		pledgeID = nullString(string(*p.PledgeID))
	}
	m, err := cents(p.Amount)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO payments (id, alumni_id, pledge_id, amount, currency, payment_method, status,
			gateway_ref, receipt_path, notes, verified_by, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AlumniID, pledgeID, m[0], p.Currency, p.Method, p.Status,
		nullString(p.GatewayRef), p.ReceiptPath, p.Notes, p.VerifiedBy, nullTime(p.VerifiedAt),
		formatTime(p.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: payment gateway_ref %q", ledger.ErrDuplicateIdempotencyKey, p.GatewayRef)
	}
	return err
}

func (c *conn) GetPayment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	var r paymentRow
	err := c.get(ctx, &r, "SELECT * FROM payments WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Payment{}, notFound("payment", string(id))
	}
	if err != nil {
		return ledger.Payment{}, err
	}
	return r.toDomain(), nil
}

func (c *conn) GetPaymentByGatewayRef(ctx context.Context, ref string) (ledger.Payment, error) {
	var r paymentRow
	err := c.get(ctx, &r, "SELECT * FROM payments WHERE gateway_ref = ?", ref)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Payment{}, notFound("payment", ref)
	}
	if err != nil {
		return ledger.Payment{}, err
	}
	return r.toDomain(), nil
}

func (c *conn) ListPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	var w where
	if f.AlumniID != "" {
		w.add("alumni_id = ?", f.AlumniID)
	}
	if f.PledgeID != "" {
		w.add("pledge_id = ?", f.PledgeID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Method != "" {
		w.add("payment_method = ?", f.Method)
	}
	if f.From != nil {
		w.add("created_at >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		w.add("created_at < ?", formatTime(*f.To))
	}

	var rows []paymentRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM payments"+w.String()+" ORDER BY created_at, id", w.args...); err != nil {
		return nil, err
	}
	out := make([]ledger.Payment, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpdatePaymentStatus records the reviewer on verified/rejected; a reversal
// keeps the original reviewer and only changes status and notes.
func (c *conn) UpdatePaymentStatus(ctx context.Context, u ledger.PaymentStatusUpdate) error {
	var (
		n   int64
		err error
	)
	switch u.To {
	case ledger.PaymentVerified, ledger.PaymentRejected:
		n, err = c.exec(ctx, `
			UPDATE payments
			SET status = ?, notes = ?, verified_by = ?, verified_at = ?
			WHERE id = ? AND status = ?`,
			u.To, u.Notes, u.ActorID, formatTime(u.At), u.ID, u.From,
		)
	default:
		n, err = c.exec(ctx, `
			UPDATE payments SET status = ?, notes = ?
			WHERE id = ? AND status = ?`,
			u.To, u.Notes, u.ID, u.From,
		)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return c.missingOrConflict(ctx, "payments", "payment", string(u.ID))
	}
	return nil
}

// =============================================================================
// FUNDS
// =============================================================================

func (c *conn) InsertFund(ctx context.Context, f ledger.ProgramFund) error {
	m, err := cents(f.Amount, f.AllocatedAmount, f.RemainingAmount)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO program_funds (id, name, category, amount, allocated_amount, remaining_amount,
			is_active, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Category, m[0], m[1], m[2], f.IsActive, f.Version, formatTime(f.CreatedAt),
	)
	return err
}

func (c *conn) GetFund(ctx context.Context, id ledger.FundID) (ledger.ProgramFund, error) {
	var r fundRow
	err := c.get(ctx, &r, "SELECT * FROM program_funds WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ProgramFund{}, notFound("fund", string(id))
	}
	if err != nil {
		return ledger.ProgramFund{}, err
	}
	return r.toDomain(), nil
}

func (c *conn) ListFunds(ctx context.Context) ([]ledger.ProgramFund, error) {
	var rows []fundRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM program_funds ORDER BY category, name, id"); err != nil {
		return nil, err
	}
	out := make([]ledger.ProgramFund, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// AllocateFromFund is the only statement that draws a fund down. The WHERE
// clause carries the whole precondition, so two allocations that each fit
// alone can never both commit against the same version.
func (c *conn) AllocateFromFund(ctx context.Context, id ledger.FundID, amount decimal.Decimal, expectedVersion int64) error {
	m, err := cents(amount)
	if err != nil {
		return err
	}
	n, err := c.exec(ctx, `
		UPDATE program_funds
		SET allocated_amount = allocated_amount + ?,
		    remaining_amount = remaining_amount - ?,
		    version = version + 1
		WHERE id = ? AND version = ? AND is_active = ? AND remaining_amount >= ?`,
		m[0], m[0], id, expectedVersion, true, m[0],
	)
	if isCheckConstraintError(err) {
		return fmt.Errorf("%w: fund %s", ledger.ErrInsufficientFunds, id)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return c.missingOrConflict(ctx, "program_funds", "fund", string(id))
	}
	return nil
}

func (c *conn) TopUpFund(ctx context.Context, id ledger.FundID, amount decimal.Decimal) error {
	m, err := cents(amount)
	if err != nil {
		return err
	}
	n, err := c.exec(ctx, `
		UPDATE program_funds
		SET amount = amount + ?, remaining_amount = remaining_amount + ?, version = version + 1
		WHERE id = ?`,
		m[0], m[0], id,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("fund", string(id))
	}
	return nil
}

func (c *conn) SetFundActive(ctx context.Context, id ledger.FundID, active bool) error {
	n, err := c.exec(ctx, "UPDATE program_funds SET is_active = ?, version = version + 1 WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("fund", string(id))
	}
	return nil
}

// =============================================================================
// EXPENSES AND EVENTS
// =============================================================================

func (c *conn) InsertExpense(ctx context.Context, e ledger.Expense) error {
	m, err := cents(e.Amount)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO expenses (id, fund_id, amount, description, expense_date, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.FundID, m[0], e.Description, formatTime(e.ExpenseDate), e.RecordedBy,
	)
	return err
}

func (c *conn) ListExpenses(ctx context.Context, fundID ledger.FundID) ([]ledger.Expense, error) {
	var rows []expenseRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM expenses WHERE fund_id = ? ORDER BY expense_date, id", fundID); err != nil {
		return nil, err
	}
	out := make([]ledger.Expense, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (c *conn) InsertEvent(ctx context.Context, e ledger.Event) error {
	var fundID sql.NullString
	if e.FundID != nil {
		fundID = nullString(string(*e.FundID))
	}
	m, err := cents(e.RequiredFunds)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO events (id, name, required_funds, fund_id, status, event_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, m[0], fundID, e.Status,
		nullTime(e.EventDate), formatTime(e.CreatedAt),
	)
	return err
}

func (c *conn) ListEvents(ctx context.Context) ([]ledger.Event, error) {
	var rows []eventRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM events ORDER BY created_at, id"); err != nil {
		return nil, err
	}
	out := make([]ledger.Event, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (c *conn) AppendEntry(ctx context.Context, e ledger.Entry) error {
	m, err := cents(e.Amount)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `
		INSERT INTO entries (id, kind, subject_id, alumni_id, fund_id, amount, actor_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.SubjectID, e.AlumniID, e.FundID, m[0],
		e.ActorID, e.IdempotencyKey, formatTime(e.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
	}
	return err
}

func (c *conn) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var w where
	if f.Kind != "" {
		w.add("kind = ?", f.Kind)
	}
	if f.SubjectID != "" {
		w.add("subject_id = ?", f.SubjectID)
	}
	if f.AlumniID != "" {
		w.add("alumni_id = ?", f.AlumniID)
	}
	if f.FundID != "" {
		w.add("fund_id = ?", f.FundID)
	}

	var rows []entryRow
	if err := c.selectRows(ctx, &rows, "SELECT * FROM entries"+w.String()+" ORDER BY created_at, id", w.args...); err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
