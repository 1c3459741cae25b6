/*
bonus.go - Mixed-plan bonus tiers

PURPOSE:
  Picks the markup applied to the monthly stream of a mixed plan
  (upfront payment + annuity on the remaining capital). Larger upfront
  payments earn a smaller markup.

TIERS (evaluated top-down, first match wins):
  > 100,000 -> 2%      > 20,000 -> 5.5%
  >  50,000 -> 4%      > 15,000 -> 6%
  >  25,000 -> 5%      > 10,000 -> 6.5%
  >=  1,000 -> 7%      otherwise -> 10% (same as the pure-annuity uplift)

  Thresholds are strict except the 1,000 floor: a payment of exactly
  100,000 lands in the 4% tier.
*/
package valuation

import "github.com/shopspring/decimal"

type bonusTier struct {
	threshold decimal.Decimal
	inclusive bool
	rate      decimal.Decimal
}

func (t bonusTier) matches(payment decimal.Decimal) bool {
	if t.inclusive {
		return payment.GreaterThanOrEqual(t.threshold)
	}
	return payment.GreaterThan(t.threshold)
}

func tier(threshold int64, rate string, inclusive bool) bonusTier {
	return bonusTier{
		threshold: decimal.NewFromInt(threshold),
		inclusive: inclusive,
		rate:      decimal.RequireFromString(rate),
	}
}

var bonusTiers = []bonusTier{
	tier(100000, "0.02", false),
	tier(50000, "0.04", false),
	tier(25000, "0.05", false),
	tier(20000, "0.055", false),
	tier(15000, "0.06", false),
	tier(10000, "0.065", false),
	tier(1000, "0.07", true),
}

// PureAnnuityUplift is the markup applied when the whole capital becomes an
// annuity; it is also the default mixed-plan rate.
var PureAnnuityUplift = decimal.RequireFromString("0.10")

// BonusRate returns the mixed-plan markup for an upfront payment.
func BonusRate(initialPayment decimal.Decimal) decimal.Decimal {
	for _, t := range bonusTiers {
		if t.matches(initialPayment) {
			return t.rate
		}
	}
	return PureAnnuityUplift
}
