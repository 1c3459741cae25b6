package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/warp/nuda-engine/valuation"
)

// DefaultContact is printed at the foot of every report unless configured.
var DefaultContact = []string{
	"NudaPro - Herramienta Profesional de Valoración Inmobiliaria",
	"Este informe es orientativo y no constituye una oferta vinculante.",
	"Contacte con su asesor para una valoración definitiva.",
}

// Document is one rendered valuation: the input echo, the result lines and
// the contact boilerplate.
type Document struct {
	Date    time.Time
	Input   valuation.Input
	Result  valuation.Result
	Contact []string
}

// Renderer writes Documents as text.
type Renderer struct {
	format  *Formatter
	contact []string
}

// NewRenderer creates a renderer. A nil contact list uses DefaultContact.
func NewRenderer(format *Formatter, contact []string) *Renderer {
	if contact == nil {
		contact = DefaultContact
	}
	return &Renderer{format: format, contact: contact}
}

// Formatter returns the currency formatter used by the renderer.
func (r *Renderer) Formatter() *Formatter {
	return r.format
}

// NewDocument pairs an input with its result, stamped with date.
func (r *Renderer) NewDocument(date time.Time, in valuation.Input, res valuation.Result) Document {
	return Document{Date: date, Input: in, Result: res, Contact: r.contact}
}

// Render writes the document.
func (r *Renderer) Render(w io.Writer, doc Document) error {
	f := r.format
	var b strings.Builder

	rule := strings.Repeat("=", 60)
	b.WriteString(rule + "\n")
	b.WriteString("INFORME DE VALORACIÓN - NUDA PROPIEDAD\n")
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "Fecha:                 %s\n", doc.Date.Format("02/01/2006"))
	fmt.Fprintf(&b, "Valor de mercado:      %s\n", f.Euros(doc.Input.MarketValue))
	fmt.Fprintf(&b, "Beneficiarios:         %d\n", doc.Input.BeneficiaryCount())
	fmt.Fprintf(&b, "Edad de cálculo:       %d años\n", doc.Result.RelevantAge)
	fmt.Fprintf(&b, "Porcentaje aplicado:   %s\n", f.Percent(doc.Result.AppliedPercentage, 2))
	fmt.Fprintf(&b, "Valor nuda propiedad:  %s\n", f.Euros(doc.Result.BarePropertyValue))
	fmt.Fprintf(&b, "Valor usufructo:       %s\n", f.Euros(doc.Result.UsufructValue))

	b.WriteString("\nOPCIONES DE PAGO\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "1. Pago único:           %s\n", f.Euros(doc.Result.OneTimePayment))
	fmt.Fprintf(&b, "2. Renta vitalicia pura: %s / mes\n", f.Euros(doc.Result.PureAnnuityMonthly))
	fmt.Fprintf(&b, "3. Renta mixta:          %s / mes (entrada %s, bonificación %s)\n",
		f.Euros(doc.Result.MixedAnnuityMonthly),
		f.Euros(doc.Input.InitialPayment),
		f.Rate(doc.Result.AppliedBonusRate),
	)

	b.WriteString("\n" + rule + "\n")
	for _, line := range doc.Contact {
		b.WriteString(line + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
