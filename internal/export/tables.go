package export

import (
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
)

// Sheet names shared by every writer.
const (
	sheetSummary  = "SUMMARY"
	sheetHoldings = "HOLDINGS"
	sheetHolders  = "HOLDERS"
	sheetHistory  = "HISTORY"
)

// buildSummary builds one row per fund.
// Columns: Fund | Denomination | Total Value | Share Price | Total Shares | Week | Month | Quarter | Year | Last Accrual
func buildSummary(rows []StatementRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{
		"Fund", "Denomination", "Total Value", "Share Price", "Total Shares",
		"Week", "Month", "Quarter", "Year", "Last Accrual",
	})

	for _, row := range rows {
		data = append(data, []any{
			row.FundID.String(),
			string(row.DenominationAsset),
			units(row.TotalValue, row.DenominationDecimals),
			units(row.SharePrice, row.DenominationDecimals),
			units(row.TotalShares, domain.ShareDecimals),
			ptrFloat(row.WeekChange),
			ptrFloat(row.MonthChange),
			ptrFloat(row.QuarterChange),
			ptrFloat(row.YearChange),
			row.LastAccrual.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return data
}

// buildHoldings lists the raw balance of every tracked asset per fund.
// Columns: Fund | Asset | Amount
func buildHoldings(rows []StatementRow) [][]any {
	data := [][]any{{"Fund", "Asset", "Amount"}}
	for _, row := range rows {
		for _, h := range row.Holdings {
			data = append(data, []any{row.FundID.String(), string(h.Asset), h.Amount.String()})
		}
	}
	return data
}

// buildHolders lists every investor's shares and ownership fraction per fund.
// Columns: Fund | Holder | Shares | Ownership
func buildHolders(rows []StatementRow) [][]any {
	data := [][]any{{"Fund", "Holder", "Shares", "Ownership"}}
	for _, row := range rows {
		for _, h := range row.Holders {
			var ownership any
			if row.TotalShares.IsPositive() {
				ownership = toFloat(h.Shares.Div(row.TotalShares))
			}
			data = append(data, []any{
				row.FundID.String(),
				string(h.Holder),
				units(h.Shares, domain.ShareDecimals),
				ownership,
			})
		}
	}
	return data
}

// units converts an amount in smallest units to whole tokens.
func units(amount decimal.Decimal, decimals int32) float64 {
	return toFloat(amount.Shift(-decimals))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
