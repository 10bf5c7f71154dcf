package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/warp/scholarship-ledger/ledger"
	"github.com/warp/scholarship-ledger/logger"
)

// maxBodyBytes bounds what we read before the signature is checked.
const maxBodyBytes = 1 << 20

// DefaultVerifierID is recorded as VerifiedBy on gateway decisions.
const DefaultVerifierID = "gateway"

// Event is the subset of the gateway payload we act on.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// decision maps an event type to a payment decision; ok is false for
// event types we acknowledge and ignore.
func decision(eventType string) (status ledger.PaymentStatus, ok bool) {
	switch eventType {
	case "payment.succeeded", "payment_intent.succeeded":
		return ledger.PaymentVerified, true
	case "payment.failed", "payment_intent.payment_failed":
		return ledger.PaymentRejected, true
	}
	return "", false
}

// Handler serves POST /webhooks/gateway.
type Handler struct {
	Engine     *ledger.Engine
	Verifier   *Verifier
	Logger     zerolog.Logger
	VerifierID string
}

func NewHandler(engine *ledger.Engine, verifier *Verifier, log zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Verifier: verifier, Logger: log, VerifierID: DefaultVerifierID}
}

type ack struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.Logger
	if reqLog := logger.FromContext(ctx); reqLog.GetLevel() != zerolog.Disabled {
		log = reqLog
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("webhook body unreadable")
		writeInvalidSignature(w)
		return
	}

	if err := h.Verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("webhook rejected")
		writeInvalidSignature(w)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Warn().Err(err).Msg("webhook payload is not valid JSON")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event"})
		return
	}
	log = log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	status, ok := decision(ev.Type)
	if !ok {
		log.Debug().Msg("webhook event ignored")
		writeJSON(w, http.StatusOK, ack{Status: "ignored"})
		return
	}
	if ev.Data.Object.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event has no data.object.id"})
		return
	}

	payment, err := h.Engine.Store.GetPaymentByGatewayRef(ctx, ev.Data.Object.ID)
	if err != nil {
		h.fail(w, log, err)
		return
	}

	result, err := h.Engine.VerifyPayment(ctx, ledger.VerifyPaymentInput{
		PaymentID:  payment.ID,
		VerifierID: h.VerifierID,
		Decision:   status,
		Notes:      "gateway event " + ev.ID,
	})
	switch {
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		log.Info().Str("payment_id", string(payment.ID)).Msg("webhook replay acknowledged")
		writeJSON(w, http.StatusOK, ack{Status: "already_processed", PaymentID: string(payment.ID)})
	case errors.Is(err, ledger.ErrInvalidTransition):
		// the payment was decided differently already; retrying can't help
		log.Warn().Err(err).Str("payment_id", string(payment.ID)).Msg("webhook decision conflicts with payment state")
		writeJSON(w, http.StatusOK, ack{Status: "ignored", PaymentID: string(payment.ID)})
	case err != nil:
		h.fail(w, log, err)
	default:
		writeJSON(w, http.StatusOK, ack{Status: string(result.Status), PaymentID: string(result.ID)})
	}
}

func (h *Handler) fail(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case ledger.IsNotFound(err):
		log.Warn().Err(err).Msg("webhook for unknown payment")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
	case ledger.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "please retry"})
	default:
		log.Error().Err(err).Msg("webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeInvalidSignature(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(ErrInvalidSignature.Error()))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
