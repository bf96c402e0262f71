package money

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders amounts for display. It is never used for arithmetic decisions.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter builds a formatter for the given BCP 47 locale and ISO 4217 currency code.
// Unknown values fall back to de-DE and EUR.
func NewFormatter(locale, code string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.German
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.EUR
	}
	return Formatter{printer: message.NewPrinter(tag), unit: unit}
}

// Format returns the locale-aware currency rendering of x.
func (f Formatter) Format(x float64) string {
	if f.printer == nil {
		f = NewFormatter("de-DE", "EUR")
	}
	return f.printer.Sprintf("%v %v", number.Decimal(RoundCents(x), number.Scale(2)), currency.Symbol(f.unit))
}

// Code returns the ISO currency code.
func (f Formatter) Code() string {
	return f.unit.String()
}
