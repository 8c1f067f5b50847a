// Package export writes fund statements to spreadsheets.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/snapshot"
)

// changePeriods are the look-back windows, in days, of the share price change columns.
var changePeriods = []int{7, 30, 90, 365}

// StatementRow is a statement with its share price change over each period.
type StatementRow struct {
	domain.Statement
	WeekChange    *decimal.Decimal
	MonthChange   *decimal.Decimal
	QuarterChange *decimal.Decimal
	YearChange    *decimal.Decimal
}

// Writer writes statement rows to a spreadsheet destination.
type Writer interface {
	Write(ctx context.Context, rows []StatementRow) error
}

// HistoryReader looks up past statements.
type HistoryReader interface {
	GetNearestBefore(ctx context.Context, fundID uuid.UUID, date time.Time) (*snapshot.Snapshot, error)
}

// Service enriches statements with history and hands them to every writer.
type Service struct {
	history HistoryReader
	writers []Writer
	now     func() time.Time
}

// NewService creates a new export Service. history may be nil, in which case
// change columns stay empty.
func NewService(history HistoryReader, writers ...Writer) *Service {
	return &Service{history: history, writers: writers, now: time.Now}
}

// Export writes statements to all writers. Implements worker.AfterStatementHook.
// A failing writer does not stop the others.
func (s *Service) Export(ctx context.Context, statements []domain.Statement) error {
	rows := make([]StatementRow, 0, len(statements))
	for _, st := range statements {
		past := s.fetchHistorical(ctx, st.FundID)
		rows = append(rows, StatementRow{
			Statement:     st,
			WeekChange:    computeChange(st.SharePrice, past[7]),
			MonthChange:   computeChange(st.SharePrice, past[30]),
			QuarterChange: computeChange(st.SharePrice, past[90]),
			YearChange:    computeChange(st.SharePrice, past[365]),
		})
	}

	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", w, err))
		}
	}
	return errors.Join(errs...)
}

// fetchHistorical returns the share price of fundID as of each change period.
func (s *Service) fetchHistorical(ctx context.Context, fundID uuid.UUID) map[int]*decimal.Decimal {
	result := make(map[int]*decimal.Decimal, len(changePeriods))
	if s.history == nil {
		return result
	}
	now := s.now().UTC()

	for _, days := range changePeriods {
		snap, err := s.history.GetNearestBefore(ctx, fundID, now.AddDate(0, 0, -days))
		if err != nil {
			if !errors.Is(err, snapshot.ErrNotFound) {
				slog.Warn("export: historical snapshot unavailable", "fund", fundID, "days", days, "error", err)
			}
			continue
		}

		var past domain.Statement
		if err := json.Unmarshal(snap.Data, &past); err != nil {
			slog.Warn("export: failed to unmarshal historical snapshot", "fund", fundID, "days", days, "error", err)
			continue
		}
		result[days] = &past.SharePrice
	}
	return result
}

// computeChange returns (current - past) / past, or nil if unavailable.
func computeChange(current decimal.Decimal, past *decimal.Decimal) *decimal.Decimal {
	if past == nil || past.IsZero() {
		return nil
	}
	pct := current.Sub(*past).Div(*past)
	return &pct
}
