package ledger

import "fmt"

// =============================================================================
// PLEDGE STATE TABLE
// =============================================================================
//
//   pending   -> confirmed | cancelled
//   confirmed -> fulfilled | cancelled
//   fulfilled -> cancelled
//   cancelled -> (terminal)
//
// A pending pledge can still become fulfilled, but only through a verified
// payment (see fulfilledByPayment), never through a manual status update.

var pledgeTransitions = map[PledgeStatus][]PledgeStatus{
	PledgePending:   {PledgeConfirmed, PledgeCancelled},
	PledgeConfirmed: {PledgeFulfilled, PledgeCancelled},
	PledgeFulfilled: {PledgeCancelled},
	PledgeCancelled: nil,
}

// =============================================================================
// PAYMENT STATE TABLE
// =============================================================================
//
//   pending  -> verified | rejected
//   verified -> reversed
//   rejected, reversed -> (terminal)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentVerified, PaymentRejected},
	PaymentVerified: {PaymentReversed},
	PaymentRejected: nil,
	PaymentReversed: nil,
}

// Valid reports whether s is a known pledge status.
func (s PledgeStatus) Valid() bool {
	_, ok := pledgeTransitions[s]
	return ok
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodManual, MethodStripe, MethodCash, MethodCheck, MethodOther:
		return true
	}
	return false
}

// CanTransitionPledge reports whether a pledge may move from -> to by a
// manual status update. It panics on a status outside the enum: input is
// validated before it gets here, so an unknown value is a programming error.
func CanTransitionPledge(from, to PledgeStatus) bool {
	next, ok := pledgeTransitions[from]
	if !ok || !to.Valid() {
		panic(fmt.Sprintf("ledger: unknown pledge status transition %q -> %q", from, to))
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment is CanTransitionPledge for payments.
func CanTransitionPayment(from, to PaymentStatus) bool {
	next, ok := paymentTransitions[from]
	if !ok || !to.Valid() {
		panic(fmt.Sprintf("ledger: unknown payment status transition %q -> %q", from, to))
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// fulfilledByPayment reports whether verifying a payment should move the
// linked pledge to fulfilled. Already-fulfilled pledges are left alone.
func fulfilledByPayment(s PledgeStatus) (apply bool, err error) {
	switch s {
	case PledgePending, PledgeConfirmed:
		return true, nil
	case PledgeFulfilled:
		return false, nil
	default:
		return false, &TransitionError{Kind: "pledge", From: string(s), To: string(PledgeFulfilled)}
	}
}
