package valuation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RelevantAge picks the age used for every downstream lookup.
// Two beneficiaries use the younger age, since the usufruct lasts until the
// last survivor dies. A missing second age falls back to single-person.
func RelevantAge(age1 int, age2 *int, isSinglePerson bool) int {
	if isSinglePerson || age2 == nil {
		return age1
	}
	return min(age1, *age2)
}

// Compute runs the full valuation. It never fails: out-of-domain ages fall
// through to the 0% lookup and the life-expectancy divisor.
func Compute(in Input, table *Table) Result {
	age := RelevantAge(in.Age1, in.Age2, in.IsSinglePerson)
	pct := table.Percentage(age)

	bare := in.MarketValue.Mul(pct).Div(hundred)
	divisor := MonthsDivisor(age)
	months := decimal.NewFromInt(int64(divisor))

	rate := BonusRate(in.InitialPayment)
	remaining := decimal.Max(decimal.Zero, bare.Sub(in.InitialPayment))

	return Result{
		RelevantAge:         age,
		AppliedPercentage:   pct,
		BarePropertyValue:   bare,
		UsufructValue:       in.MarketValue.Sub(bare),
		OneTimePayment:      bare,
		MonthsDivisor:       divisor,
		PureAnnuityMonthly:  bare.Mul(decimal.NewFromInt(1).Add(PureAnnuityUplift)).Div(months),
		AppliedBonusRate:    rate,
		RemainingCapital:    remaining,
		MixedAnnuityMonthly: remaining.Mul(decimal.NewFromInt(1).Add(rate)).Div(months),
	}
}

// =============================================================================
// LENIENT INPUT PARSING
// =============================================================================

// Values is satisfied by url.Values and any string lookup.
type Values interface {
	Get(key string) string
}

// Form field names accepted by ParseInput.
const (
	FieldMarketValue    = "market_value"
	FieldAge1           = "age1"
	FieldAge2           = "age2"
	FieldSingle         = "is_single_person"
	FieldInitialPayment = "initial_payment"
)

// ParseInput builds an Input from loosely typed form values. Non-numeric
// values coerce to 0 and negative money to 0, so Compute only ever sees
// numbers. An empty age2 means "absent"; single defaults to true.
func ParseInput(v Values) Input {
	in := Input{
		MarketValue:    coerceMoney(v.Get(FieldMarketValue)),
		Age1:           coerceInt(v.Get(FieldAge1)),
		IsSinglePerson: coerceBool(v.Get(FieldSingle), true),
		InitialPayment: coerceMoney(v.Get(FieldInitialPayment)),
	}
	if raw := strings.TrimSpace(v.Get(FieldAge2)); raw != "" {
		age2 := coerceInt(raw)
		in.Age2 = &age2
	}
	return in
}

// Input bounds. Exponents are capped before any arithmetic touches the value.
const (
	maxInputExponent = 64
	maxMoneyDigits   = 15 // integer digits; 1e15 and above coerce to 0
)

// CoerceDecimal parses s, returning zero for anything non-numeric or with an
// exponent beyond ±64 ("1e5000000").
func CoerceDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	if exp := d.Exponent(); exp > maxInputExponent || exp < -maxInputExponent {
		return decimal.Zero
	}
	return d
}

func coerceMoney(s string) decimal.Decimal {
	d := CoerceDecimal(s)
	if d.IsNegative() || d.NumDigits()+int(d.Exponent()) > maxMoneyDigits {
		return decimal.Zero
	}
	return d
}

func coerceInt(s string) int {
	return int(CoerceDecimal(s).IntPart())
}

func coerceBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}
