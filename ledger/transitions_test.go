package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/scholarship-ledger/ledger"
)

func TestCanTransitionPledge(t *testing.T) {
	tests := []struct {
		from, to ledger.PledgeStatus
		want     bool
	}{
		{ledger.PledgePending, ledger.PledgeConfirmed, true},
		{ledger.PledgePending, ledger.PledgeCancelled, true},
		{ledger.PledgePending, ledger.PledgeFulfilled, false},
		{ledger.PledgeConfirmed, ledger.PledgeFulfilled, true},
		{ledger.PledgeConfirmed, ledger.PledgePending, false},
		{ledger.PledgeFulfilled, ledger.PledgeCancelled, true},
		{ledger.PledgeFulfilled, ledger.PledgeConfirmed, false},
		{ledger.PledgeCancelled, ledger.PledgePending, false},
		{ledger.PledgeCancelled, ledger.PledgeFulfilled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ledger.CanTransitionPledge(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		from, to ledger.PaymentStatus
		want     bool
	}{
		{ledger.PaymentPending, ledger.PaymentVerified, true},
		{ledger.PaymentPending, ledger.PaymentRejected, true},
		{ledger.PaymentPending, ledger.PaymentReversed, false},
		{ledger.PaymentVerified, ledger.PaymentReversed, true},
		{ledger.PaymentVerified, ledger.PaymentPending, false},
		{ledger.PaymentVerified, ledger.PaymentRejected, false},
		{ledger.PaymentRejected, ledger.PaymentVerified, false},
		{ledger.PaymentReversed, ledger.PaymentVerified, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ledger.CanTransitionPayment(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransition_UnknownStatusPanics(t *testing.T) {
	assert.Panics(t, func() { ledger.CanTransitionPledge("paid", ledger.PledgeCancelled) })
	assert.Panics(t, func() { ledger.CanTransitionPayment(ledger.PaymentPending, "settled") })
}

func TestStatusAndMethodValid(t *testing.T) {
	assert.True(t, ledger.PledgeFulfilled.Valid())
	assert.False(t, ledger.PledgeStatus("PAID").Valid())
	assert.True(t, ledger.PaymentReversed.Valid())
	assert.True(t, ledger.MethodBankTransfer.Valid())
	assert.False(t, ledger.PaymentMethod("crypto").Valid())
}
