// Package report renders valuation results for people: currency strings and
// the plain-text report handed to clients.
package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale matches the market the calculator is used in.
const DefaultLocale = "es-ES"

// Formatter prints euro amounts with locale grouping and no decimals.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	prefix  bool
}

// NewFormatter builds a formatter for a BCP 47 locale such as "es-ES".
// English locales put the symbol first ("€250,000"); the rest after ("250.000 €").
func NewFormatter(locale string) (*Formatter, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid report locale %q: %w", locale, err)
	}
	base, _ := tag.Base()
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		prefix:  base.String() == "en",
	}, nil
}

// Locale returns the formatter's language tag.
func (f *Formatter) Locale() language.Tag {
	return f.tag
}

// Euros rounds to whole euros and adds the symbol.
func (f *Formatter) Euros(amount decimal.Decimal) string {
	n := f.printer.Sprint(number.Decimal(amount.Round(0).IntPart()))
	if f.prefix {
		return "€" + n
	}
	return n + " €"
}

// Percent prints a percentage value (49.5 -> "49,50 %" in Spanish).
func (f *Formatter) Percent(value decimal.Decimal, places int) string {
	n := f.printer.Sprint(number.Decimal(value.InexactFloat64(),
		number.MinFractionDigits(places), number.MaxFractionDigits(places)))
	if f.prefix {
		return n + "%"
	}
	return n + " %"
}

// Rate prints a fractional rate as a percentage (0.055 -> "5,5 %").
func (f *Formatter) Rate(rate decimal.Decimal) string {
	n := f.printer.Sprint(number.Decimal(rate.Mul(decimal.NewFromInt(100)).InexactFloat64(),
		number.MaxFractionDigits(2)))
	if f.prefix {
		return n + "%"
	}
	return n + " %"
}
