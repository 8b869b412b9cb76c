// Package documents renders customer-facing order documents from persisted
// order data. Documents are a pure function of the order, so regenerating one
// for the same order always yields the same bytes.
package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shopnatural/core/internal/domain"
)

// ErrOrderNotConfirmable is returned for orders that have no confirmation to
// document yet.
var ErrOrderNotConfirmable = errors.New("documents: order is not confirmed")

// ConfirmationDocument is the stable view of a confirmed order handed to the
// customer as JSON or rendered text.
type ConfirmationDocument struct {
	OrderNumber   string             `json:"order_number"`
	InvoiceNumber string             `json:"invoice_number"`
	ConfirmedAt   time.Time          `json:"confirmed_at"`
	Email         string             `json:"email"`
	Currency      string             `json:"currency"`
	Items         []ConfirmationLine `json:"items"`
	Totals        ConfirmationTotals `json:"totals"`
	Shipping      domain.Address     `json:"shipping_address"`
	Billing       domain.Address     `json:"billing_address"`
	Promotion     string             `json:"promotion_code,omitempty"`
}

// ConfirmationLine is one purchased item with formatted amounts.
type ConfirmationLine struct {
	Name      string `json:"name"`
	Variant   string `json:"variant,omitempty"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

// ConfirmationTotals is the money breakdown with formatted amounts.
type ConfirmationTotals struct {
	Subtotal        string `json:"subtotal"`
	SubtotalExclVAT string `json:"subtotal_excl_vat"`
	VATAmount       string `json:"vat_amount"`
	Discount        string `json:"discount,omitempty"`
	ShippingCost    string `json:"shipping_cost"`
	Total           string `json:"total"`
}

// Builder renders confirmation documents. The zero value is not usable; use
// NewBuilder.
type Builder struct {
	printer *message.Printer
}

// NewBuilder constructs a document builder.
func NewBuilder() *Builder {
	return &Builder{printer: message.NewPrinter(language.English)}
}

// Build derives the confirmation document from the order. The order must be
// confirmed: it carries an order number, an invoice number and a confirmation
// timestamp.
func (b *Builder) Build(order domain.Order) (ConfirmationDocument, error) {
	if order.OrderNumber == "" || order.InvoiceNumber == "" || order.ConfirmedAt == nil {
		return ConfirmationDocument{}, ErrOrderNotConfirmable
	}
	unit, err := currency.ParseISO(order.Currency)
	if err != nil {
		return ConfirmationDocument{}, fmt.Errorf("documents: currency %q: %w", order.Currency, err)
	}

	doc := ConfirmationDocument{
		OrderNumber:   order.OrderNumber,
		InvoiceNumber: order.InvoiceNumber,
		ConfirmedAt:   order.ConfirmedAt.UTC(),
		Email:         order.Email,
		Currency:      unit.String(),
		Shipping:      order.ShippingAddress,
		Billing:       order.BillingAddress,
		Totals: ConfirmationTotals{
			Subtotal:        b.amount(unit, order.Totals.Subtotal),
			SubtotalExclVAT: b.amount(unit, order.Totals.SubtotalExclVAT),
			VATAmount:       b.amount(unit, order.Totals.VATAmount),
			ShippingCost:    b.amount(unit, order.Totals.ShippingCost),
			Total:           b.amount(unit, order.Totals.Total),
		},
	}
	if order.Totals.Discount > 0 {
		doc.Totals.Discount = b.amount(unit, order.Totals.Discount)
	}
	if order.Promotion != nil {
		doc.Promotion = order.Promotion.Code
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, ConfirmationLine{
			Name:      item.Name,
			Variant:   item.Variant,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: b.amount(unit, item.UnitPrice),
			Total:     b.amount(unit, item.Total),
		})
	}
	return doc, nil
}

// RenderJSON returns the document as indented JSON.
func (b *Builder) RenderJSON(order domain.Order) ([]byte, error) {
	doc, err := b.Build(order)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// RenderText returns a plain-text rendering suitable for email bodies and
// download.
func (b *Builder) RenderText(order domain.Order) (string, error) {
	doc, err := b.Build(order)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Order confirmation %s\n", doc.OrderNumber)
	fmt.Fprintf(&sb, "Invoice %s\n", doc.InvoiceNumber)
	fmt.Fprintf(&sb, "Confirmed %s\n\n", doc.ConfirmedAt.Format("2006-01-02 15:04 MST"))

	for _, line := range doc.Items {
		name := line.Name
		if line.Variant != "" {
			name = name + " (" + line.Variant + ")"
		}
		fmt.Fprintf(&sb, "%d x %-40s %s\n", line.Quantity, name, line.Total)
	}

	fmt.Fprintf(&sb, "\nSubtotal:      %s\n", doc.Totals.Subtotal)
	fmt.Fprintf(&sb, "  excl. VAT:   %s\n", doc.Totals.SubtotalExclVAT)
	fmt.Fprintf(&sb, "  VAT:         %s\n", doc.Totals.VATAmount)
	if doc.Totals.Discount != "" {
		code := doc.Promotion
		if code == "" {
			code = "promotion"
		}
		fmt.Fprintf(&sb, "Discount (%s): -%s\n", code, doc.Totals.Discount)
	}
	fmt.Fprintf(&sb, "Shipping:      %s\n", doc.Totals.ShippingCost)
	fmt.Fprintf(&sb, "Total:         %s\n\n", doc.Totals.Total)

	fmt.Fprintf(&sb, "Ship to:\n%s\n", formatAddress(doc.Shipping))
	return sb.String(), nil
}

// amount formats minor units with the currency symbol, e.g. "€85.19".
func (b *Builder) amount(unit currency.Unit, minor int64) string {
	major := float64(minor) / 100
	return b.printer.Sprintf("%v", currency.NarrowSymbol(unit.Amount(major)))
}

func formatAddress(a domain.Address) string {
	parts := []string{a.Recipient}
	if a.Company != "" {
		parts = append(parts, a.Company)
	}
	parts = append(parts, a.Line1)
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, fmt.Sprintf("%s %s", a.PostalCode, a.City), a.Country)
	return strings.Join(parts, "\n")
}
