package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelWriter implements Writer by saving one xlsx workbook per run into dir.
type ExcelWriter struct {
	dir string
	now func() time.Time
}

// NewExcelWriter creates an ExcelWriter that saves workbooks into dir.
func NewExcelWriter(dir string) *ExcelWriter {
	return &ExcelWriter{dir: dir, now: time.Now}
}

// Path returns the workbook path for a run on day.
func (w *ExcelWriter) Path(day time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("statements-%s.xlsx", day.UTC().Format("2006-01-02")))
}

// Write saves the SUMMARY, HOLDINGS and HOLDERS sheets, replacing any
// workbook of the same day.
func (w *ExcelWriter) Write(_ context.Context, rows []StatementRow) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating statement dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9EAD3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	sheets := []struct {
		name string
		data [][]any
	}{
		{sheetSummary, buildSummary(rows)},
		{sheetHoldings, buildHoldings(rows)},
		{sheetHolders, buildHolders(rows)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, s.data, header); err != nil {
			return err
		}
	}

	if err := f.SaveAs(w.Path(w.now())); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, data [][]any, headerStyle int) error {
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}

	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
