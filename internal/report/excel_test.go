package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pharmapos/backend/internal/domain"
)

func rec(day string, sales, purchases, returns, expenses, net string) domain.DailyRecord {
	return domain.DailyRecord{
		Day:            day,
		SalesTotal:     decimal.RequireFromString(sales),
		PurchasesTotal: decimal.RequireFromString(purchases),
		ReturnsTotal:   decimal.RequireFromString(returns),
		ExpensesTotal:  decimal.RequireFromString(expenses),
		NetTotal:       decimal.RequireFromString(net),
	}
}

func raw(t *testing.T, f *excelize.File, sheet string, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func TestWriteDailyLayout(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDaily(&buf, []domain.DailyRecord{
		rec("2026-03-01", "100.50", "40", "10", "5", "45.50"),
		rec("2026-03-02", "200", "0", "0", "20", "180"),
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DailySheet}, f.GetSheetList())
	for cell, want := range map[string]string{
		"A1": "Date", "B1": "Sales", "C1": "Purchases", "D1": "Returns", "E1": "Expenses", "F1": "Net",
		"A2": "2026-03-01", "B2": "100.5",
		"A4": "Total", "B4": "300.5", "E4": "25", "F4": "225.5",
	} {
		assert.Equal(t, want, raw(t, f, DailySheet, cell), cell)
	}

	width, err := f.GetColWidth(DailySheet, "A")
	require.NoError(t, err)
	assert.Equal(t, 18.0, width)
}

func TestWriteMonthlyWithDays(t *testing.T) {
	months := []domain.MonthlyRecord{{
		Month:          "2026-03",
		SalesTotal:     decimal.NewFromInt(300),
		PurchasesTotal: decimal.NewFromInt(40),
		ReturnsTotal:   decimal.NewFromInt(10),
		ExpensesTotal:  decimal.NewFromInt(25),
		NetTotal:       decimal.NewFromInt(225),
		Days: []domain.DailyRecord{
			rec("2026-03-01", "100", "40", "10", "5", "45"),
			rec("2026-03-02", "200", "0", "0", "20", "180"),
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteMonthly(&buf, months, true))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{MonthlySheet, DailySheet}, f.GetSheetList())
	assert.Equal(t, "Month", raw(t, f, MonthlySheet, "A1"))
	assert.Equal(t, "2026-03", raw(t, f, MonthlySheet, "A2"))
	assert.Equal(t, "Total", raw(t, f, MonthlySheet, "A3"))
	assert.Equal(t, "225", raw(t, f, MonthlySheet, "F3"))
	assert.Equal(t, "2026-03-02", raw(t, f, DailySheet, "A3"))
	assert.Equal(t, "Total", raw(t, f, DailySheet, "A4"))
}

func TestWriteMonthlyWithoutDays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMonthly(&buf, nil, false))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{MonthlySheet}, f.GetSheetList())
	assert.Equal(t, "Total", raw(t, f, MonthlySheet, "A2"))
}
