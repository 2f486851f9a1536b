package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate applies when a quote is requested without an explicit rate.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// RenewalQuote is derived on every period selection and never persisted as such.
// Amounts keep full precision; rounding belongs to display formatting.
type RenewalQuote struct {
	Period        Period          `json:"period"`
	Months        int             `json:"months"`
	BasePrice     decimal.Decimal `json:"base_price"`
	DiscountRate  decimal.Decimal `json:"discount_rate"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Taxable       decimal.Decimal `json:"taxable"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	NewExpiryDate time.Time       `json:"new_expiry_date"`
}

// Rounded returns a copy with the monetary amounts rounded half-away-from-zero
// to the given number of decimal places.
func (q RenewalQuote) Rounded(places int32) RenewalQuote {
	q.Subtotal = q.Subtotal.Round(places)
	q.Discount = q.Discount.Round(places)
	q.Taxable = q.Taxable.Round(places)
	q.Tax = q.Tax.Round(places)
	q.Total = q.Total.Round(places)
	return q
}
