/*
validate.go - Input validation for engine operations

PURPOSE:
  Pure checks run before any mutation: required fields, positive amounts,
  enum membership and cross-field consistency. Failures come back as a
  *ValidationError mapping JSON field names to English messages.

TAGS:
  money       decimal > 0 with at most two fractional digits
  money_zero  decimal >= 0 with at most two fractional digits
  max_money   decimal <= MaxAmount
  notblank    string with at least one non-space character
  (plus the stock validator tags: required, oneof, email, iso4217, max...)

CROSS-FIELD:
  CheckAllocation compares a request against a fund's remaining balance.
  The same condition is re-checked by the conditional UPDATE at commit time,
  so a stale read can only produce ErrConcurrentModification, never an
  overdraft.
*/
package ledger

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags & texts
	moneyTag      = "money"
	moneyText     = "{0} must be a positive amount with at most 2 decimal places"
	moneyZeroTag  = "money_zero"
	moneyZeroText = "{0} must be zero or a positive amount with at most 2 decimal places"
	maxMoneyTag   = "max_money"
	maxMoneyText  = "{0} must not exceed " + MaxAmount.StringFixed(MoneyScale)
	notBlankTag   = "notblank"
	notBlankText  = "{0} cannot be blank"
	currencyTag   = "iso4217"
	currencyText  = "{0} must be an ISO 4217 currency code"
)

func init() {
	validate = validator.New()

	// Register the english error messages for validation errors.
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// decimals are validated through their string form
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = validate.RegisterValidation(moneyTag, moneyValidation(false))
	_ = validate.RegisterValidation(moneyZeroTag, moneyValidation(true))
	_ = validate.RegisterValidation(maxMoneyTag, maxMoneyValidation)
	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)

	registerTranslation(moneyTag, moneyText)
	registerTranslation(moneyZeroTag, moneyZeroText)
	registerTranslation(maxMoneyTag, maxMoneyText)
	registerTranslation(notBlankTag, notBlankText)
	registerTranslation(currencyTag, currencyText)
}

func registerTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func moneyValidation(allowZero bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		if d.IsNegative() || (!allowZero && d.IsZero()) {
			return false
		}
		return d.Equal(d.Round(MoneyScale))
	}
}

func maxMoneyValidation(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.LessThanOrEqual(MaxAmount)
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate checks in against its struct tags. Passing something that is
// not a struct is a programming error and panics.
func Validate(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		panic(err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: fe.Translate(translator)})
	}
	return NewValidationError(fields...)
}

// CheckAllocation reports whether amount can be drawn from f right now.
func CheckAllocation(f ProgramFund, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError(FieldError{Field: "amount", Message: "amount must be greater than 0"})
	}
	if !f.IsActive {
		return ErrFundInactive
	}
	if amount.GreaterThan(f.RemainingAmount) {
		return &InsufficientFundsError{FundID: f.ID, Available: f.RemainingAmount, Requested: amount}
	}
	return nil
}

// =============================================================================
// OPERATION INPUTS
// =============================================================================

type CreateAlumniInput struct {
	Name           string `json:"name" validate:"required,notblank,max=200"`
	Email          string `json:"email" validate:"omitempty,email"`
	GraduationYear int    `json:"graduation_year" validate:"omitempty,gte=1900,lte=2100"`
}

type CreatePledgeInput struct {
	AlumniID AlumniID        `json:"alumni_id" validate:"required,notblank"`
	Amount   decimal.Decimal `json:"amount" validate:"money,max_money"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
	Notes    string          `json:"notes" validate:"max=2000"`
}

type UpdatePledgeStatusInput struct {
	PledgeID PledgeID     `json:"pledge_id" validate:"required,notblank"`
	Status   PledgeStatus `json:"status" validate:"required,oneof=pending confirmed fulfilled cancelled"`
	Notes    string       `json:"notes" validate:"max=2000"`
}

type AddPaymentInput struct {
	AlumniID    AlumniID        `json:"alumni_id" validate:"required,notblank"`
	Amount      decimal.Decimal `json:"amount" validate:"money,max_money"`
	Currency    string          `json:"currency" validate:"omitempty,iso4217"`
	Method      PaymentMethod   `json:"payment_method" validate:"required,oneof=card bank_transfer manual stripe cash check other"`
	PledgeID    *PledgeID       `json:"pledge_id,omitempty" validate:"omitempty,notblank"`
	GatewayRef  string          `json:"gateway_ref,omitempty" validate:"max=255"`
	ReceiptPath string          `json:"receipt_path,omitempty" validate:"max=1024"`
	Notes       string          `json:"notes" validate:"max=2000"`
}

type VerifyPaymentInput struct {
	PaymentID  PaymentID     `json:"payment_id" validate:"required,notblank"`
	VerifierID string        `json:"verifier_id" validate:"required,notblank"`
	Decision   PaymentStatus `json:"decision" validate:"required,oneof=verified rejected"`
	Notes      string        `json:"notes" validate:"max=2000"`
}

type ReversePaymentInput struct {
	PaymentID PaymentID `json:"payment_id" validate:"required,notblank"`
	ActorID   string    `json:"actor_id" validate:"required,notblank"`
	Reason    string    `json:"reason" validate:"required,notblank,max=2000"`
}

type CreateFundInput struct {
	Name     string          `json:"name" validate:"required,notblank,max=200"`
	Category string          `json:"category" validate:"required,notblank,max=100"`
	Amount   decimal.Decimal `json:"amount" validate:"money_zero,max_money"`
}

type TopUpFundInput struct {
	FundID  FundID          `json:"fund_id" validate:"required,notblank"`
	Amount  decimal.Decimal `json:"amount" validate:"money,max_money"`
	ActorID string          `json:"actor_id" validate:"required,notblank"`
}

type CreateExpenseInput struct {
	FundID      FundID          `json:"fund_id" validate:"required,notblank"`
	Amount      decimal.Decimal `json:"amount" validate:"money,max_money"`
	Description string          `json:"description" validate:"required,notblank,max=500"`
	ExpenseDate *time.Time      `json:"expense_date,omitempty"`
	ActorID     string          `json:"actor_id" validate:"required,notblank"`
}

type CreateEventInput struct {
	Name          string          `json:"name" validate:"required,notblank,max=200"`
	RequiredFunds decimal.Decimal `json:"required_funds" validate:"money,max_money"`
	FundID        *FundID         `json:"program_fund_id,omitempty" validate:"omitempty,notblank"`
	EventDate     *time.Time      `json:"event_date,omitempty"`
	ActorID       string          `json:"actor_id" validate:"required,notblank"`
}
