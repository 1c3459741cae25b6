/*
Package valuation provides the bare-ownership (nuda propiedad) valuation engine.

PURPOSE:
  Turns a property market value, one or two beneficiary ages and an optional
  upfront payment into a bare-ownership capital value and the annuity plans
  derived from it. Everything else in the service (API, reports, admin)
  consumes the Result produced here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry:  One row of the coefficient table (age -> percentage)
  - Input:  What the buyer/seller supplies
  - Result: Everything derived from Input + Table

DESIGN PRINCIPLES:
  1. Purity: Compute has no side effects and never fails
  2. Precision: Uses decimal.Decimal; rounding is a presentation concern
  3. Auditability: Divisor and bonus policies are ordered rule tables
     (see divisor.go, bonus.go) so every band edge is visible in one place

USAGE:
  table, _ := valuation.NewTable(valuation.DefaultEntries())
  res := valuation.Compute(valuation.Input{
      MarketValue:    decimal.NewFromInt(250000),
      Age1:           70,
      IsSinglePerson: true,
  }, table)

SEE ALSO:
  - table.go:   Coefficient table and percentage lookup
  - divisor.go: Age-banded annuity divisor policy
  - bonus.go:   Mixed-plan bonus tiers
  - engine.go:  Compute
*/
package valuation

import "github.com/shopspring/decimal"

// =============================================================================
// COEFFICIENT ENTRY
// =============================================================================

// Entry maps an age to the bare-ownership percentage applied at that age.
type Entry struct {
	Age        int             `json:"age" yaml:"age"`
	Percentage decimal.Decimal `json:"percentage" yaml:"percentage"`
}

// NewEntry is a convenience constructor used by defaults and tests.
func NewEntry(age int, percentage float64) Entry {
	return Entry{Age: age, Percentage: decimal.NewFromFloat(percentage)}
}

// =============================================================================
// INPUT / RESULT
// =============================================================================

// Input is the data supplied for one valuation.
// When IsSinglePerson is true, Age2 is ignored even if set.
type Input struct {
	MarketValue    decimal.Decimal
	Age1           int
	Age2           *int
	IsSinglePerson bool
	InitialPayment decimal.Decimal
}

// BeneficiaryCount returns 1 or 2, following the same fallback as RelevantAge.
func (in Input) BeneficiaryCount() int {
	if in.IsSinglePerson || in.Age2 == nil {
		return 1
	}
	return 2
}

// Result is derived entirely from an Input and a Table. Values are unrounded.
type Result struct {
	RelevantAge       int
	AppliedPercentage decimal.Decimal

	BarePropertyValue decimal.Decimal
	UsufructValue     decimal.Decimal
	OneTimePayment    decimal.Decimal

	MonthsDivisor      int
	PureAnnuityMonthly decimal.Decimal

	AppliedBonusRate    decimal.Decimal
	RemainingCapital    decimal.Decimal
	MixedAnnuityMonthly decimal.Decimal
}
