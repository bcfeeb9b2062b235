package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"pharmapos/backend/internal/domain"
)

func TestSaleRequestValid(t *testing.T) {
	req := domain.SaleRequest{
		PaymentMode: "cash",
		Items: []domain.SaleLineRequest{
			{ProductID: "prd_1", Quantity: 2, Price: decimal.NewFromInt(10)},
			{Type: domain.SaleLineManual, Name: "Cotton roll", Quantity: 1, Price: decimal.NewFromInt(3)},
		},
	}
	assert.Nil(t, Struct(req))
}

func TestSaleRequestFieldErrors(t *testing.T) {
	req := domain.SaleRequest{
		PaymentMode:        "cheque",
		DiscountPercentage: decimal.NewFromInt(120),
		Items: []domain.SaleLineRequest{
			{Quantity: 0, Price: decimal.NewFromInt(-1)},
			{Type: domain.SaleLineManual, ProductID: "prd_1", Quantity: 1},
		},
	}

	fields := Struct(req)
	assert.Equal(t, "Must be one of: CASH CARD ONLINE cash card online", fields["payment_mode"])
	assert.Equal(t, "Must be a percentage between 0 and 100", fields["discount_percentage"])
	assert.Equal(t, "This field is required", fields["items[0].product_id"])
	assert.Equal(t, "Must be greater than 0", fields["items[0].quantity"])
	assert.Equal(t, "Must be a non-negative amount", fields["items[0].price"])
	assert.Equal(t, "This field is required", fields["items[1].name"])
	assert.Equal(t, "This field is not allowed here", fields["items[1].product_id"])
}

func TestEmptyCartRejected(t *testing.T) {
	fields := Struct(domain.SaleRequest{})
	assert.Contains(t, fields, "items")
}

func TestExpenseAmountMustBePositive(t *testing.T) {
	fields := Struct(domain.ExpenseCreateRequest{Category: "Rent", Amount: decimal.Zero})
	assert.Equal(t, "Must be greater than 0", fields["amount"])

	assert.Nil(t, Struct(domain.ExpenseCreateRequest{Category: "Rent", Amount: decimal.RequireFromString("0.01")}))
}

func TestOptionalDecimalPointer(t *testing.T) {
	bad := decimal.NewFromInt(-5)
	req := domain.BatchCreateRequest{
		BatchNumber:   "B1",
		ExpiryDate:    "2027-01-31",
		PurchasePrice: decimal.NewFromInt(1),
		SalePrice:     &bad,
	}
	assert.Contains(t, Struct(req), "sale_price")

	req.SalePrice = nil
	assert.Nil(t, Struct(req))

	req.ExpiryDate = "31/01/2027"
	assert.Contains(t, Struct(req), "expiry_date")
}
