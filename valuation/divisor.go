/*
divisor.go - Age-banded annuity divisor policy

PURPOSE:
  Converts the relevant age into the number of months used to spread a
  lump sum into a monthly annuity. Each band assumes a terminal age; the
  divisor is (terminal - age) * 12.

BANDS (inclusive, evaluated top-down):
  65-82 -> 90    83-84 -> 91    85-86 -> 92    87-88 -> 93
  89    -> 94    90    -> 95    91-97 -> 97 (at least one year)

  Ages outside 65-97 use the static life-expectancy table, 5 years when
  the age is not listed.

  The curve has cliff edges at every band boundary (82 -> 8 years,
  83 -> 8 years, 84 -> 7 years). They are business-defined and must not
  be smoothed.
*/
package valuation

type divisorRule struct {
	minAge      int
	maxAge      int
	terminalAge int
	minYears    int
}

func (r divisorRule) matches(age int) bool {
	return age >= r.minAge && age <= r.maxAge
}

func (r divisorRule) years(age int) int {
	return max(r.minYears, r.terminalAge-age)
}

var divisorRules = []divisorRule{
	{minAge: 65, maxAge: 82, terminalAge: 90},
	{minAge: 83, maxAge: 84, terminalAge: 91},
	{minAge: 85, maxAge: 86, terminalAge: 92},
	{minAge: 87, maxAge: 88, terminalAge: 93},
	{minAge: 89, maxAge: 89, terminalAge: 94},
	{minAge: 90, maxAge: 90, terminalAge: 95},
	{minAge: 91, maxAge: 97, terminalAge: 97, minYears: 1},
}

// lifeExpectancy is the simplified remaining-years table used outside the bands.
var lifeExpectancy = map[int]int{
	65: 21, 66: 20, 67: 19, 68: 18, 69: 17, 70: 16, 71: 15, 72: 14, 73: 13, 74: 12,
	75: 11, 76: 11, 77: 10, 78: 9, 79: 9, 80: 8, 81: 7, 82: 7, 83: 6, 84: 6,
	85: 5, 86: 5, 87: 4, 88: 4, 89: 3, 90: 3,
}

const defaultLifeExpectancyYears = 5

// MonthsDivisor returns the annuity divisor in months for age. Always > 0.
func MonthsDivisor(age int) int {
	for _, r := range divisorRules {
		if r.matches(age) {
			return r.years(age) * 12
		}
	}
	years, ok := lifeExpectancy[age]
	if !ok {
		years = defaultLifeExpectancyYears
	}
	return years * 12
}
