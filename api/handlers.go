/*
handlers.go - HTTP API handlers for the scholarship ledger

PURPOSE:
  Exposes the reconciliation engine and reports via REST. Handles HTTP
  request/response and JSON, checks the caller's role, and delegates every
  state change to ledger.Engine.

ENDPOINTS:
  Alumni:
    POST   /api/alumni                       Create profile (staff)
    GET    /api/alumni                       List profiles (staff)
    GET    /api/alumni/{id}                  Profile with totals
    GET    /api/alumni/{id}/statement        Pledges, payments, outstanding
    POST   /api/alumni/{id}/pledges          Create pledge
    POST   /api/alumni/{id}/payments         Record payment

  Pledges / Payments:
    GET    /api/pledges                      ?alumni_id&status&from&to
    GET    /api/pledges/{id}
    PATCH  /api/pledges/{id}/status          State-table checked
    GET    /api/payments                     ?alumni_id&pledge_id&status&payment_method&from&to
    GET    /api/payments/{id}
    POST   /api/payments/{id}/verify         verified | rejected (staff)
    POST   /api/payments/{id}/reverse        Refund / chargeback (staff)

  Funds / Events:
    POST   /api/funds, GET /api/funds, GET /api/funds/{id}
    POST   /api/funds/{id}/topup, POST /api/funds/{id}/active
    POST   /api/funds/{id}/expenses, GET /api/funds/{id}/expenses
    POST   /api/events, GET /api/events

  Reports:
    GET    /api/reports/{funds,pledges,payments,dashboard}
           list and report endpoints take ?from&to or ?period=<type>&at=<day>
    GET    /api/audit

ACCESS:
  Staff and admin act on everything. Alumni act only on their own profile,
  pledges and payments, and may only cancel (not confirm) their pledges.
  Students read funds, events and the dashboard.

ERROR HANDLING:
  See errors.go for the error -> status mapping.

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
  - webhook/: Gateway callbacks (same VerifyPayment path)
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/scholarship-ledger/ledger"
	"github.com/warp/scholarship-ledger/reports"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *ledger.Engine
	Reports *reports.Service

	// FiscalYearStart anchors ?period=fiscal_year.
	FiscalYearStart time.Month

	// Auditor serves GET /api/audit?cached=1. Nil means always audit live.
	Auditor *AuditScheduler
}

// NewHandler creates a handler reading and writing through engine.
func NewHandler(engine *ledger.Engine) *Handler {
	return &Handler{Engine: engine, Reports: reports.New(engine.Store), FiscalYearStart: time.January}
}

func (h *Handler) store() ledger.Store { return h.Engine.Store }

// timeParam parses an optional RFC3339 or YYYY-MM-DD query parameter.
func timeParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ledger.NewValidationError(ledger.FieldError{Field: name, Message: name + " must be a date (YYYY-MM-DD) or RFC3339 timestamp"})
}

// dateRange reads ?from&to, or ?period (with an optional ?at reference day)
// resolved through reports.PeriodConfig.
func (h *Handler) dateRange(r *http.Request) (from, to *time.Time, err error) {
	if name := r.URL.Query().Get("period"); name != "" {
		typ, err := reports.ParsePeriodType(name)
		if err != nil {
			return nil, nil, ledger.NewValidationError(ledger.FieldError{Field: "period", Message: "period must be one of calendar_year fiscal_year quarter month rolling"})
		}
		at, err := timeParam(r, "at")
		if err != nil {
			return nil, nil, err
		}
		ref := h.Engine.Now()
		if at != nil {
			ref = *at
		}
		p := reports.PeriodConfig{Type: typ, FiscalYearStart: h.FiscalYearStart}.PeriodFor(ref)
		return &p.Start, &p.End, nil
	}

	if from, err = timeParam(r, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = timeParam(r, "to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, ledger.NewValidationError(ledger.FieldError{Field: "to", Message: "to must be after from"})
	}
	return from, to, nil
}

// =============================================================================
// ALUMNI HANDLERS
// =============================================================================

func (h *Handler) CreateAlumni(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateAlumniInput
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := h.Engine.CreateAlumni(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAlumniDTO(a))
}

func (h *Handler) ListAlumni(w http.ResponseWriter, r *http.Request) {
	alumni, err := h.store().ListAlumni(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(alumni, toAlumniDTO))
}

func (h *Handler) GetAlumni(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !actorFromContext(r.Context()).CanActFor(id) {
		writeForbidden(w)
		return
	}
	a, err := h.store().GetAlumni(r.Context(), ledger.AlumniID(id))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlumniDTO(a))
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !actorFromContext(r.Context()).CanActFor(id) {
		writeForbidden(w)
		return
	}
	st, err := h.Reports.AlumniStatement(r.Context(), ledger.AlumniID(id))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatementDTO{
		Alumni:      toAlumniDTO(st.Alumni),
		Pledges:     mapSlice(st.Pledges, toPledgeDTO),
		Payments:    mapSlice(st.Payments, toPaymentDTO),
		Outstanding: moneyString(st.Outstanding),
	})
}

// CreatePledge records a pledge for the alumnus in the path.
func (h *Handler) CreatePledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !actorFromContext(r.Context()).CanActFor(id) {
		writeForbidden(w)
		return
	}
	var in ledger.CreatePledgeInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.AlumniID = ledger.AlumniID(id)

	p, err := h.Engine.CreatePledge(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPledgeDTO(p))
}

// AddPayment records a pending payment for the alumnus in the path.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !actorFromContext(r.Context()).CanActFor(id) {
		writeForbidden(w)
		return
	}
	var in ledger.AddPaymentInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.AlumniID = ledger.AlumniID(id)

	p, err := h.Engine.AddPayment(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

// =============================================================================
// PLEDGE HANDLERS
// =============================================================================

func (h *Handler) ListPledges(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	q := r.URL.Query()

	from, to, err := h.dateRange(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	f := ledger.PledgeFilter{
		AlumniID: ledger.AlumniID(q.Get("alumni_id")),
		Status:   ledger.PledgeStatus(q.Get("status")),
		From:     from,
		To:       to,
	}
	if !actor.Privileged() {
		// alumni only ever see their own
		f.AlumniID = ledger.AlumniID(actor.ID)
	}

	pledges, err := h.store().ListPledges(r.Context(), f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(pledges, toPledgeDTO))
}

func (h *Handler) GetPledge(w http.ResponseWriter, r *http.Request) {
	p, err := h.store().GetPledge(r.Context(), ledger.PledgeID(chi.URLParam(r, "id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !actorFromContext(r.Context()).CanActFor(string(p.AlumniID)) {
		// don't reveal that the pledge exists
		handleError(w, r, ledger.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toPledgeDTO(p))
}

func (h *Handler) UpdatePledgeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFromContext(ctx)
	id := ledger.PledgeID(chi.URLParam(r, "id"))

	var in ledger.UpdatePledgeStatusInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.PledgeID = id

	if !actor.Privileged() {
		p, err := h.store().GetPledge(ctx, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if !actor.CanActFor(string(p.AlumniID)) {
			handleError(w, r, ledger.ErrNotFound)
			return
		}
		if in.Status != ledger.PledgeCancelled {
			writeForbidden(w)
			return
		}
	}

	p, err := h.Engine.UpdatePledgeStatus(ctx, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPledgeDTO(p))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	q := r.URL.Query()

	from, to, err := h.dateRange(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	f := ledger.PaymentFilter{
		AlumniID: ledger.AlumniID(q.Get("alumni_id")),
		PledgeID: ledger.PledgeID(q.Get("pledge_id")),
		Status:   ledger.PaymentStatus(q.Get("status")),
		Method:   ledger.PaymentMethod(q.Get("payment_method")),
		From:     from,
		To:       to,
	}
	if !actor.Privileged() {
		f.AlumniID = ledger.AlumniID(actor.ID)
	}

	payments, err := h.store().ListPayments(r.Context(), f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(payments, toPaymentDTO))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.store().GetPayment(r.Context(), ledger.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !actorFromContext(r.Context()).CanActFor(string(p.AlumniID)) {
		handleError(w, r, ledger.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

// VerifyPayment applies a staff decision. The reviewer is the caller.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var in ledger.VerifyPaymentInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.PaymentID = ledger.PaymentID(chi.URLParam(r, "id"))
	in.VerifierID = actorFromContext(r.Context()).ID

	p, err := h.Engine.VerifyPayment(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (h *Handler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	var in ledger.ReversePaymentInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.PaymentID = ledger.PaymentID(chi.URLParam(r, "id"))
	in.ActorID = actorFromContext(r.Context()).ID

	p, err := h.Engine.ReversePayment(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

// =============================================================================
// FUND HANDLERS
// =============================================================================

func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateFundInput
	if !decodeBody(w, r, &in) {
		return
	}
	f, err := h.Engine.CreateFund(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFundDTO(f))
}

func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.store().ListFunds(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(funds, toFundDTO))
}

func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	f, err := h.store().GetFund(r.Context(), ledger.FundID(chi.URLParam(r, "id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(f))
}

func (h *Handler) TopUpFund(w http.ResponseWriter, r *http.Request) {
	var in ledger.TopUpFundInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.FundID = ledger.FundID(chi.URLParam(r, "id"))
	in.ActorID = actorFromContext(r.Context()).ID

	f, err := h.Engine.TopUpFund(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(f))
}

func (h *Handler) SetFundActive(w http.ResponseWriter, r *http.Request) {
	var req SetFundActiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		handleError(w, r, ledger.NewValidationError(ledger.FieldError{Field: "active", Message: "active is a required field"}))
		return
	}

	f, err := h.Engine.SetFundActive(r.Context(), ledger.FundID(chi.URLParam(r, "id")), *req.Active)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(f))
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateExpenseInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.FundID = ledger.FundID(chi.URLParam(r, "id"))
	in.ActorID = actorFromContext(r.Context()).ID

	x, err := h.Engine.CreateExpense(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(x))
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.FundID(chi.URLParam(r, "id"))
	if _, err := h.store().GetFund(ctx, id); err != nil {
		handleError(w, r, err)
		return
	}
	expenses, err := h.store().ListExpenses(ctx, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(expenses, toExpenseDTO))
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateEventInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.ActorID = actorFromContext(r.Context()).ID

	ev, err := h.Engine.CreateEvent(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store().ListEvents(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(events, toEventDTO))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) FundReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.FundSummary(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FundReportDTO{
		Categories: mapSlice(rep.Categories, toCategoryDTO),
		Total:      toCategoryDTO(rep.Total),
	})
}

func (h *Handler) PledgeReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	rep, err := h.Reports.PledgeSummary(r.Context(), from, to)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PledgeReportDTO{
		ByStatus:       toStatusBuckets(rep.ByStatus),
		Count:          rep.Count,
		Amount:         moneyString(rep.Amount),
		FulfilledPct:   moneyString(rep.FulfilledPct),
		CancelledCount: rep.CancelledCount,
	})
}

func (h *Handler) PaymentReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	rep, err := h.Reports.PaymentSummary(r.Context(), from, to)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentReportDTO{
		From:           rep.From,
		To:             rep.To,
		ByStatus:       toStatusBuckets(rep.ByStatus),
		ByMethod:       toMethodBuckets(rep.ByMethod),
		VerifiedAmount: moneyString(rep.VerifiedAmount),
		PendingCount:   rep.PendingCount,
	})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reports.Dashboard(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		AlumniCount:       d.AlumniCount,
		TotalPledged:      moneyString(d.TotalPledged),
		TotalContributed:  moneyString(d.TotalContributed),
		CollectionRatePct: moneyString(d.CollectionRatePct),
		PendingPayments:   d.PendingPayments,
		TotalFunds:        moneyString(d.TotalFunds),
		TotalAllocated:    moneyString(d.TotalAllocated),
		TotalRemaining:    moneyString(d.TotalRemaining),
		ActiveFunds:       d.ActiveFunds,
		FundedEvents:      d.FundedEvents,
		UtilisationPct:    moneyString(d.UtilisationPct),
	})
}

// Audit recomputes every cached counter and lists disagreements.
// Audit recomputes the cached counters. With ?cached=1 it returns the last
// scheduled pass instead, falling back to a live audit when none has run.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.Auditor != nil && r.URL.Query().Get("cached") == "1" {
		if last := h.Auditor.Last(); last != nil {
			if last.Err != nil {
				handleError(w, r, last.Err)
				return
			}
			out := toAuditDTO(last.Drifts)
			ranAt := last.RanAt
			out.RanAt = &ranAt
			writeJSON(w, http.StatusOK, out)
			return
		}
	}

	drifts, err := h.Engine.Audit(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(drifts))
}

// ListEntries returns the append-only balance log, oldest first.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.EntryFilter{
		Kind:      ledger.EntryKind(q.Get("kind")),
		SubjectID: q.Get("subject_id"),
		AlumniID:  ledger.AlumniID(q.Get("alumni_id")),
		FundID:    ledger.FundID(q.Get("program_fund_id")),
	}
	entries, err := h.store().ListEntries(r.Context(), f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, toEntryDTO))
}
