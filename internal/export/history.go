package export

import (
	"context"
	"fmt"
	"time"

	sheets "google.golang.org/api/sheets/v4"

	"github.com/mtlprog/hexa/internal/domain"
)

// historyHeader is the HISTORY sheet header. Column A holds the run date.
var historyHeader = []any{"Date", "Fund", "Denomination", "Total Value", "Share Price", "Total Shares", "Holders"}

// historyIntegerCols lists column indices (0-based) that use #,##0 format.
var historyIntegerCols = []int{3, 5}

// buildHistoryRows builds one HISTORY row per fund for a run at time at.
func buildHistoryRows(rows []StatementRow, at time.Time) [][]any {
	date := at.UTC().Format("02.01.2006")
	data := make([][]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, []any{
			date,
			row.FundID.String(),
			string(row.DenominationAsset),
			units(row.TotalValue, row.DenominationDecimals),
			units(row.SharePrice, row.DenominationDecimals),
			units(row.TotalShares, domain.ShareDecimals),
			float64(len(row.Holders)),
		})
	}
	return data
}

// appendHistory writes the header if the HISTORY sheet is empty, then
// appends one row per fund for the current run.
func (w *SheetsWriter) appendHistory(ctx context.Context, rows []StatementRow, meta sheetMeta) error {
	if len(rows) == 0 {
		return nil
	}

	existing, err := w.svc.Spreadsheets.Values.Get(
		w.spreadsheetID, sheetHistory+"!A1:A1",
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading HISTORY header: %w", err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			sheetHistory+"!A1",
			&sheets.ValueRange{Values: [][]any{historyHeader}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing HISTORY header: %w", err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		sheetHistory+"!A:G",
		&sheets.ValueRange{Values: buildHistoryRows(rows, time.Now())},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending HISTORY rows: %w", err)
	}

	if err := w.applyHistoryFormatting(ctx, meta); err != nil {
		return fmt.Errorf("formatting HISTORY sheet: %w", err)
	}
	return nil
}

// historyFormatRequests builds the HISTORY layout: a bold light-green header,
// frozen header row, date and integer number formats, no banding.
func historyFormatRequests(meta sheetMeta) []*sheets.Request {
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}
	totalCols := int64(len(historyHeader))

	reqs := []*sheets.Request{
		cellFormatReq(meta.id, 0, 1, 0, totalCols,
			&sheets.CellFormat{
				BackgroundColor:     lightGreen,
				TextFormat:          &sheets.TextFormat{Bold: true},
				HorizontalAlignment: "CENTER",
			},
			"userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)"),
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        meta.id,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		cellFormatReq(meta.id, 1, 100000, 0, 1,
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "DATE", Pattern: "d.m.yyyy"}},
			"userEnteredFormat.numberFormat"),
	}

	for _, col := range historyIntegerCols {
		reqs = append(reqs, cellFormatReq(meta.id, 1, 100000, int64(col), int64(col+1),
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "#,##0"}},
			"userEnteredFormat.numberFormat"))
	}

	for _, bid := range meta.bandingIDs {
		reqs = append(reqs, &sheets.Request{
			DeleteBanding: &sheets.DeleteBandingRequest{BandedRangeId: bid},
		})
	}
	return reqs
}

func (w *SheetsWriter) applyHistoryFormatting(ctx context.Context, meta sheetMeta) error {
	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: historyFormatRequests(meta)},
	).Context(ctx).Do()
	return err
}
