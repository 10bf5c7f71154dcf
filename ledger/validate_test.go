package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scholarship-ledger/ledger"
)

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := ledger.Validate(ledger.AddPaymentInput{Amount: money("1.5")})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := verr.FieldMap()
	assert.Contains(t, fields, "alumni_id")
	assert.Contains(t, fields, "payment_method")
	assert.NotContains(t, fields, "amount")
}

func TestValidate_MoneyTags(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"whole", "100", false},
		{"cents", "99.99", false},
		{"trailing zeros", "12.500", false},
		{"zero", "0", true},
		{"negative", "-0.01", true},
		{"sub-cent", "0.001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Validate(ledger.CreatePledgeInput{AlumniID: "a-1", Amount: money(tt.amount)})
			if tt.wantErr {
				var verr *ledger.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "amount must be a positive amount with at most 2 decimal places", verr.FieldMap()["amount"])
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_AmountCap(t *testing.T) {
	// GIVEN an amount whose cents overflow int64
	huge := money("184467440737095516.17")

	// WHEN pledge and fund inputs carry it
	pledgeErr := ledger.Validate(ledger.CreatePledgeInput{AlumniID: "a-1", Amount: huge})
	fundErr := ledger.Validate(ledger.CreateFundInput{Name: "Seed", Category: "events", Amount: huge})

	// THEN both are rejected on the amount field
	for _, err := range []error{pledgeErr, fundErr} {
		var verr *ledger.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount must not exceed 1000000000000.00", verr.FieldMap()["amount"])
	}

	// AND the cap itself is accepted
	assert.NoError(t, ledger.Validate(ledger.CreatePledgeInput{AlumniID: "a-1", Amount: ledger.MaxAmount}))
}

func TestToMinorUnits_OutOfRange(t *testing.T) {
	c, err := ledger.ToMinorUnits(money("12.34"))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), c)

	_, err = ledger.ToMinorUnits(money("184467440737095516.17"))
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)

	_, err = ledger.ToMinorUnits(money("-184467440737095516.17"))
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
}

func TestValidate_FundMayStartEmpty(t *testing.T) {
	assert.NoError(t, ledger.Validate(ledger.CreateFundInput{Name: "Seed", Category: "events", Amount: money("0")}))

	err := ledger.Validate(ledger.CreateFundInput{Name: "Seed", Category: "events", Amount: money("-1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestValidate_BlankStrings(t *testing.T) {
	err := ledger.Validate(ledger.CreateAlumniInput{Name: "   "})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name cannot be blank", verr.FieldMap()["name"])
}

func TestValidate_Currency(t *testing.T) {
	assert.NoError(t, ledger.Validate(ledger.CreatePledgeInput{AlumniID: "a-1", Amount: money("1"), Currency: "EUR"}))

	err := ledger.Validate(ledger.CreatePledgeInput{AlumniID: "a-1", Amount: money("1"), Currency: "XYZ"})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "currency must be an ISO 4217 currency code", verr.FieldMap()["currency"])
}

func TestCheckAllocation(t *testing.T) {
	fund := ledger.ProgramFund{
		ID: "f-1", Amount: money("1000"), AllocatedAmount: money("600"), RemainingAmount: money("400"), IsActive: true,
	}

	assert.NoError(t, ledger.CheckAllocation(fund, money("400")))
	assert.ErrorIs(t, ledger.CheckAllocation(fund, money("0")), ledger.ErrValidation)

	err := ledger.CheckAllocation(fund, money("400.01"))
	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assertMoney(t, "0.01", ife.Shortfall())

	fund.IsActive = false
	assert.ErrorIs(t, ledger.CheckAllocation(fund, money("1")), ledger.ErrFundInactive)
}
