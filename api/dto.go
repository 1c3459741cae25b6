/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal decimal-based model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are rounded to cents here, never in the engine. The Display
  block carries the same values formatted for people (whole euros).

VALUATION INPUT:
  Valuation requests are NOT decoded into a typed struct: the body is read
  as a loose JSON object and coerced field by field (valuation.ParseInput),
  so a non-numeric value becomes 0 instead of a 400.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/nuda-engine/account"
	"github.com/warp/nuda-engine/report"
	"github.com/warp/nuda-engine/valuation"
)

// =============================================================================
// VALUATION
// =============================================================================

// ValuationDTO is the result of one valuation.
type ValuationDTO struct {
	Input   ValuationInputDTO   `json:"input"`
	Result  ValuationResultDTO  `json:"result"`
	Display ValuationDisplayDTO `json:"display"`
}

// ValuationInputDTO echoes the coerced input.
type ValuationInputDTO struct {
	MarketValue      float64 `json:"market_value"`
	Age1             int     `json:"age1"`
	Age2             *int    `json:"age2,omitempty"`
	IsSinglePerson   bool    `json:"is_single_person"`
	InitialPayment   float64 `json:"initial_payment"`
	BeneficiaryCount int     `json:"beneficiary_count"`
}

// ValuationResultDTO carries the engine result rounded to cents.
type ValuationResultDTO struct {
	RelevantAge         int     `json:"relevant_age"`
	AppliedPercentage   float64 `json:"applied_percentage"`
	BarePropertyValue   float64 `json:"bare_property_value"`
	UsufructValue       float64 `json:"usufruct_value"`
	OneTimePayment      float64 `json:"one_time_payment"`
	MonthsDivisor       int     `json:"months_divisor"`
	PureAnnuityMonthly  float64 `json:"pure_annuity_monthly"`
	AppliedBonusRate    float64 `json:"applied_bonus_rate"`
	RemainingCapital    float64 `json:"remaining_capital"`
	MixedAnnuityMonthly float64 `json:"mixed_annuity_monthly"`
}

// ValuationDisplayDTO holds locale-formatted strings for the UI.
type ValuationDisplayDTO struct {
	MarketValue         string `json:"market_value"`
	AppliedPercentage   string `json:"applied_percentage"`
	BarePropertyValue   string `json:"bare_property_value"`
	UsufructValue       string `json:"usufruct_value"`
	OneTimePayment      string `json:"one_time_payment"`
	PureAnnuityMonthly  string `json:"pure_annuity_monthly"`
	MixedAnnuityMonthly string `json:"mixed_annuity_monthly"`
	AppliedBonusRate    string `json:"applied_bonus_rate"`
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toValuationDTO(in valuation.Input, res valuation.Result, f *report.Formatter) ValuationDTO {
	dto := ValuationDTO{
		Input: ValuationInputDTO{
			MarketValue:      cents(in.MarketValue),
			Age1:             in.Age1,
			IsSinglePerson:   in.IsSinglePerson,
			InitialPayment:   cents(in.InitialPayment),
			BeneficiaryCount: in.BeneficiaryCount(),
		},
		Result: ValuationResultDTO{
			RelevantAge:         res.RelevantAge,
			AppliedPercentage:   res.AppliedPercentage.InexactFloat64(),
			BarePropertyValue:   cents(res.BarePropertyValue),
			UsufructValue:       cents(res.UsufructValue),
			OneTimePayment:      cents(res.OneTimePayment),
			MonthsDivisor:       res.MonthsDivisor,
			PureAnnuityMonthly:  cents(res.PureAnnuityMonthly),
			AppliedBonusRate:    res.AppliedBonusRate.InexactFloat64(),
			RemainingCapital:    cents(res.RemainingCapital),
			MixedAnnuityMonthly: cents(res.MixedAnnuityMonthly),
		},
		Display: ValuationDisplayDTO{
			MarketValue:         f.Euros(in.MarketValue),
			AppliedPercentage:   f.Percent(res.AppliedPercentage, 2),
			BarePropertyValue:   f.Euros(res.BarePropertyValue),
			UsufructValue:       f.Euros(res.UsufructValue),
			OneTimePayment:      f.Euros(res.OneTimePayment),
			PureAnnuityMonthly:  f.Euros(res.PureAnnuityMonthly),
			MixedAnnuityMonthly: f.Euros(res.MixedAnnuityMonthly),
			AppliedBonusRate:    f.Rate(res.AppliedBonusRate),
		},
	}
	if in.Age2 != nil && !in.IsSinglePerson {
		age2 := *in.Age2
		dto.Input.Age2 = &age2
	}
	return dto
}

// =============================================================================
// COEFFICIENT TABLE
// =============================================================================

// CoefficientDTO is one table row.
type CoefficientDTO struct {
	Age        int     `json:"age"`
	Percentage float64 `json:"percentage"`
}

// CoefficientTableDTO is the whole table.
type CoefficientTableDTO struct {
	Coefficients []CoefficientDTO `json:"coefficients"`
	Count        int              `json:"count"`
}

func toCoefficientTableDTO(t *valuation.Table) CoefficientTableDTO {
	entries := t.Entries()
	dtos := make([]CoefficientDTO, len(entries))
	for i, e := range entries {
		dtos[i] = CoefficientDTO{Age: e.Age, Percentage: e.Percentage.InexactFloat64()}
	}
	return CoefficientTableDTO{Coefficients: dtos, Count: len(dtos)}
}

func fromCoefficientDTOs(dtos []CoefficientDTO) []valuation.Entry {
	entries := make([]valuation.Entry, len(dtos))
	for i, d := range dtos {
		entries[i] = valuation.NewEntry(d.Age, d.Percentage)
	}
	return entries
}

// =============================================================================
// AUTH / USERS
// =============================================================================

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionDTO describes a session. Token is only set on login.
type SessionDTO struct {
	Token     string `json:"token,omitempty"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

func toSessionDTO(s *account.Session, withToken bool) SessionDTO {
	dto := SessionDTO{
		Username:  s.Username,
		Role:      string(s.Role),
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if withToken {
		dto.Token = s.Token
	}
	return dto
}

// UserDTO represents an account. Password hashes never leave the server.
type UserDTO struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	Protected bool   `json:"protected"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toUserDTO(u account.User) UserDTO {
	return UserDTO{
		Username:  u.Username,
		Role:      string(u.Role),
		Protected: u.Username == account.AdminUsername,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateUserRequest is the body of POST /api/admin/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ChangePasswordRequest is the body of PUT /api/admin/users/{username}/password.
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse is a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
