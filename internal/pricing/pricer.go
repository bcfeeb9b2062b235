// Package pricing computes discount, tax and total for a single sale or
// purchase line. All arithmetic is fixed-point decimal.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type Input struct {
	Quantity           int
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	TaxPercentage      decimal.Decimal
	TaxAmount          decimal.Decimal
}

type Result struct {
	Gross          decimal.Decimal
	DiscountAmount decimal.Decimal
	Taxable        decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Price applies the line rule: a non-zero supplied amount wins over the
// percentage, otherwise the percentage is applied and rounded to cents.
// The discount is taken from the gross and tax from what remains.
func Price(in Input) Result {
	gross := Round2(decimal.NewFromInt(int64(in.Quantity)).Mul(in.UnitPrice))

	discount := in.DiscountAmount
	if discount.IsZero() {
		discount = percentOf(gross, in.DiscountPercentage)
	}

	taxable := gross.Sub(discount)

	tax := in.TaxAmount
	if tax.IsZero() {
		tax = percentOf(taxable, in.TaxPercentage)
	}

	return Result{
		Gross:          gross,
		DiscountAmount: discount,
		Taxable:        taxable,
		TaxAmount:      tax,
		TotalAmount:    taxable.Add(tax),
	}
}

func percentOf(base decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	if !pct.IsPositive() {
		return decimal.Zero
	}
	return Round2(base.Mul(pct).Div(hundred))
}

// Round2 rounds half away from zero to two places, which is half-up for
// the non-negative amounts handled here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// UnitRefund is the per-unit amount actually paid on a line.
func UnitRefund(total decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return Round2(total.Div(decimal.NewFromInt(int64(quantity))))
}

// Sum adds values without rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
