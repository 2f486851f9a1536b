// Package calculator prices a subscription renewal. It performs no I/O and reads no clock,
// so identical inputs always produce identical quotes.
package calculator

import (
	"math"
	"time"

	"github.com/railzwaylabs/renewal/internal/renewal/domain"
	"github.com/shopspring/decimal"
)

type options struct {
	taxRate decimal.Decimal
}

type Option func(*options)

// WithTaxRate overrides domain.DefaultTaxRate.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(o *options) {
		o.taxRate = rate
	}
}

// Quote computes subtotal, discount, tax and total in that order, and the expiry
// reached by extending currentEndDate by the period's calendar months.
func Quote(basePrice decimal.Decimal, period domain.Period, currentEndDate time.Time, opts ...Option) (domain.RenewalQuote, error) {
	o := options{taxRate: domain.DefaultTaxRate}
	for _, opt := range opts {
		opt(&o)
	}

	months, err := domain.MonthsInPeriod(period)
	if err != nil {
		return domain.RenewalQuote{}, err
	}
	discountRate, err := domain.DiscountRate(period)
	if err != nil {
		return domain.RenewalQuote{}, err
	}
	if basePrice.IsNegative() {
		return domain.RenewalQuote{}, domain.ErrInvalidPrice
	}
	if o.taxRate.IsNegative() {
		return domain.RenewalQuote{}, domain.ErrInvalidTaxRate
	}
	if currentEndDate.IsZero() {
		return domain.RenewalQuote{}, domain.ErrInvalidEndDate
	}

	subtotal := basePrice.Mul(decimal.NewFromInt(int64(months)))
	discount := subtotal.Mul(discountRate)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(o.taxRate)

	return domain.RenewalQuote{
		Period:        period,
		Months:        months,
		BasePrice:     basePrice,
		DiscountRate:  discountRate,
		TaxRate:       o.taxRate,
		Subtotal:      subtotal,
		Discount:      discount,
		Taxable:       taxable,
		Tax:           tax,
		Total:         taxable.Add(tax),
		NewExpiryDate: AddMonths(currentEndDate, months),
	}, nil
}

// PriceFromFloat converts a float price, rejecting NaN, infinities and negatives.
func PriceFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Zero, domain.ErrInvalidPrice
	}
	return decimal.NewFromFloat(v), nil
}

// ParsePrice parses a decimal price string.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, domain.ErrInvalidPrice
	}
	return d, nil
}
