// Package report renders the daily and monthly cash records as xlsx
// workbooks.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pharmapos/backend/internal/domain"
)

const (
	DailySheet   = "Daily"
	MonthlySheet = "Monthly"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	currencyFormat = `"Rs." #,##0.00`
)

var columnWidths = []float64{18, 16, 16, 16, 16, 16}

type row struct {
	label  string
	values [5]decimal.Decimal
}

type styles struct {
	header   int
	currency int
	total    int
	label    int
}

func newStyles(f *excelize.File) (styles, error) {
	numFmt := currencyFormat
	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.currency, err = f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt}); err != nil {
		return s, err
	}
	if s.total, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &numFmt}); err != nil {
		return s, err
	}
	if s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	return s, nil
}

// WriteDaily writes a single "Daily" sheet with one row per record and a
// bold total row.
func WriteDaily(w io.Writer, records []domain.DailyRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DailySheet); err != nil {
		return err
	}
	st, err := newStyles(f)
	if err != nil {
		return err
	}
	if err := writeSheet(f, st, DailySheet, "Date", dailyRows(records)); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteMonthly writes a "Monthly" sheet and, when withDays is set, a "Daily"
// sheet listing every constituent day.
func WriteMonthly(w io.Writer, months []domain.MonthlyRecord, withDays bool) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MonthlySheet); err != nil {
		return err
	}
	st, err := newStyles(f)
	if err != nil {
		return err
	}

	monthRows := make([]row, 0, len(months))
	days := make([]domain.DailyRecord, 0, 366)
	for _, m := range months {
		monthRows = append(monthRows, row{
			label:  m.Month,
			values: [5]decimal.Decimal{m.SalesTotal, m.PurchasesTotal, m.ReturnsTotal, m.ExpensesTotal, m.NetTotal},
		})
		days = append(days, m.Days...)
	}
	if err := writeSheet(f, st, MonthlySheet, "Month", monthRows); err != nil {
		return err
	}

	if withDays {
		if _, err := f.NewSheet(DailySheet); err != nil {
			return err
		}
		if err := writeSheet(f, st, DailySheet, "Date", dailyRows(days)); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func dailyRows(records []domain.DailyRecord) []row {
	rows := make([]row, 0, len(records))
	for _, r := range records {
		rows = append(rows, row{
			label:  r.Day,
			values: [5]decimal.Decimal{r.SalesTotal, r.PurchasesTotal, r.ReturnsTotal, r.ExpensesTotal, r.NetTotal},
		})
	}
	return rows
}

func writeSheet(f *excelize.File, st styles, sheet string, firstHeader string, rows []row) error {
	headers := []string{firstHeader, "Sales", "Purchases", "Returns", "Expenses", "Net"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", st.header); err != nil {
		return err
	}

	var totals [5]decimal.Decimal
	for i, r := range rows {
		rowNo := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", rowNo), r.label); err != nil {
			return err
		}
		for j, v := range r.values {
			cell, _ := excelize.CoordinatesToCellName(j+2, rowNo)
			if err := f.SetCellValue(sheet, cell, v.InexactFloat64()); err != nil {
				return err
			}
			totals[j] = totals[j].Add(v)
		}
	}

	totalRow := len(rows) + 2
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", totalRow), "Total"); err != nil {
		return err
	}
	for j, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(j+2, totalRow)
		if err := f.SetCellValue(sheet, cell, v.InexactFloat64()); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		if err := f.SetCellStyle(sheet, "B2", fmt.Sprintf("F%d", totalRow-1), st.currency); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("A%d", totalRow), st.label); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("B%d", totalRow), fmt.Sprintf("F%d", totalRow), st.total); err != nil {
		return err
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
