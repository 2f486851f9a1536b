package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodOneMonth    Period = "1-month"
	PeriodThreeMonths Period = "3-months"
	PeriodSixMonths   Period = "6-months"
	PeriodOneYear     Period = "1-year"
)

type periodTerms struct {
	months       int
	discountRate decimal.Decimal
}

var terms = map[Period]periodTerms{
	PeriodOneMonth:    {months: 1, discountRate: decimal.Zero},
	PeriodThreeMonths: {months: 3, discountRate: decimal.RequireFromString("0.05")},
	PeriodSixMonths:   {months: 6, discountRate: decimal.RequireFromString("0.10")},
	PeriodOneYear:     {months: 12, discountRate: decimal.RequireFromString("0.20")},
}

// Periods lists the renewal periods from shortest to longest.
func Periods() []Period {
	return []Period{PeriodOneMonth, PeriodThreeMonths, PeriodSixMonths, PeriodOneYear}
}

func ParsePeriod(value string) (Period, error) {
	p := Period(strings.TrimSpace(value))
	if !p.Valid() {
		return "", ErrInvalidPeriod
	}
	return p, nil
}

func (p Period) Valid() bool {
	_, ok := terms[p]
	return ok
}

func (p Period) String() string {
	return string(p)
}

func MonthsInPeriod(p Period) (int, error) {
	t, ok := terms[p]
	if !ok {
		return 0, ErrInvalidPeriod
	}
	return t.months, nil
}

func DiscountRate(p Period) (decimal.Decimal, error) {
	t, ok := terms[p]
	if !ok {
		return decimal.Zero, ErrInvalidPeriod
	}
	return t.discountRate, nil
}
