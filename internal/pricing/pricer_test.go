package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got.String())
}

func TestPricePercentDiscountAndTax(t *testing.T) {
	res := Price(Input{
		Quantity:           10,
		UnitPrice:          dec("10.50"),
		DiscountPercentage: dec("5"),
		TaxPercentage:      dec("10"),
	})

	assertDecimal(t, "105.00", res.Gross)
	assertDecimal(t, "5.25", res.DiscountAmount)
	assertDecimal(t, "99.75", res.Taxable)
	assertDecimal(t, "9.98", res.TaxAmount)
	assertDecimal(t, "109.73", res.TotalAmount)
}

func TestPriceIsIdempotentWhenOutputsFedBack(t *testing.T) {
	in := Input{
		Quantity:           10,
		UnitPrice:          dec("10.50"),
		DiscountPercentage: dec("5"),
		TaxPercentage:      dec("10"),
	}
	first := Price(in)

	in.DiscountAmount = first.DiscountAmount
	in.TaxAmount = first.TaxAmount
	second := Price(in)

	assert.True(t, first.DiscountAmount.Equal(second.DiscountAmount))
	assert.True(t, first.TaxAmount.Equal(second.TaxAmount))
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
}

func TestPriceManualAmountsOverridePercentages(t *testing.T) {
	res := Price(Input{
		Quantity:           2,
		UnitPrice:          dec("50"),
		DiscountPercentage: dec("50"),
		DiscountAmount:     dec("3"),
		TaxPercentage:      dec("20"),
		TaxAmount:          dec("1.10"),
	})

	assertDecimal(t, "100", res.Gross)
	assertDecimal(t, "3", res.DiscountAmount)
	assertDecimal(t, "97", res.Taxable)
	assertDecimal(t, "1.10", res.TaxAmount)
	assertDecimal(t, "98.10", res.TotalAmount)
}

func TestPriceWithoutDiscountOrTax(t *testing.T) {
	res := Price(Input{Quantity: 3, UnitPrice: dec("4.20")})

	assertDecimal(t, "12.60", res.Gross)
	assert.True(t, res.DiscountAmount.IsZero())
	assert.True(t, res.TaxAmount.IsZero())
	assertDecimal(t, "12.60", res.TotalAmount)
}

func TestRound2HalfUp(t *testing.T) {
	cases := map[string]string{
		"9.975":  "9.98",
		"0.005":  "0.01",
		"1.004":  "1",
		"2.3350": "2.34",
		"7":      "7",
	}
	for in, want := range cases {
		assertDecimal(t, want, Round2(dec(in)))
	}
}

func TestUnitRefund(t *testing.T) {
	assertDecimal(t, "3.33", UnitRefund(dec("10"), 3))
	assertDecimal(t, "21.95", UnitRefund(dec("109.73"), 5))
	assert.True(t, UnitRefund(dec("10"), 0).IsZero())
}
