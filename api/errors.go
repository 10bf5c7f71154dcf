package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/scholarship-ledger/ledger"
	"github.com/warp/scholarship-ledger/logger"
)

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "Not allowed", "forbidden", nil)
}

// handleError maps ledger errors to HTTP responses:
//
//	validation              400  field -> message map
//	amount out of range     400  attributed to "amount"
//	insufficient funds      422  attributed to "amount"
//	fund inactive           422  attributed to "program_fund_id"
//	not found               404
//	concurrent modification 409  retryable
//	invalid transition      409
//	already processed       409
//	anything else           500  logged, details withheld
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *ledger.ValidationError
		ife  *ledger.InsufficientFundsError
		terr *ledger.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "Validation failed", "validation_error", verr.FieldMap())
	case errors.Is(err, ledger.ErrAmountOutOfRange):
		writeError(w, http.StatusBadRequest, "Validation failed", "validation_error", map[string]string{
			"amount": "amount is out of range",
		})
	case errors.As(err, &ife):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient funds", "insufficient_funds", map[string]string{
			"amount": "exceeds remaining balance of " + moneyString(ife.Available),
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient funds", "insufficient_funds", map[string]string{
			"amount": "exceeds remaining balance",
		})
	case errors.Is(err, ledger.ErrFundInactive):
		writeError(w, http.StatusUnprocessableEntity, "Fund is inactive", "fund_inactive", map[string]string{
			"program_fund_id": "fund is not accepting allocations",
		})
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Resource not found", "not_found", nil)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, "Resource was modified concurrently, please retry", "conflict", nil)
	case errors.As(err, &terr):
		writeError(w, http.StatusConflict, "Status change not allowed", "invalid_transition", map[string]string{
			"from": terr.From, "to": terr.To,
		})
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "Payment already processed", "already_processed", nil)
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", "internal", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err.Error())
		return false
	}
	return true
}
