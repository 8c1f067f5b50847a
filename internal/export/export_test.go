package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/snapshot"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockHistory struct {
	byDays map[int]decimal.Decimal
	err    error
}

func (m *mockHistory) GetNearestBefore(_ context.Context, fundID uuid.UUID, date time.Time) (*snapshot.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	days := int(now.Sub(date).Hours() / 24)
	sp, ok := m.byDays[days]
	if !ok {
		return nil, snapshot.ErrNotFound
	}
	data, _ := json.Marshal(domain.Statement{FundID: fundID, SharePrice: sp})
	return &snapshot.Snapshot{FundID: fundID, Data: data}, nil
}

type mockWriter struct {
	rows []StatementRow
	err  error
}

func (m *mockWriter) Write(_ context.Context, rows []StatementRow) error {
	m.rows = rows
	return m.err
}

func statement() domain.Statement {
	return domain.Statement{
		FundID:               uuid.MustParse("0b6f2e1a-6c0d-4a4b-9d55-2f0c5a1e7b10"),
		GeneratedAt:          now,
		DenominationAsset:    "USDC",
		DenominationDecimals: 6,
		TotalValue:           decimal.NewFromInt(2_500_000_000),
		SharePrice:           decimal.NewFromInt(1_100_000),
		TotalShares:          decimal.RequireFromString("2272727272727272727272"),
		LastAccrual:          now,
		Holdings: []domain.ValueItem{
			{Asset: "USDC", Amount: decimal.NewFromInt(1_500_000_000)},
			{Asset: "WETH", Amount: decimal.New(5, 17)},
		},
		Holders: []domain.ShareHolding{
			{Holder: "alice", Shares: decimal.RequireFromString("1818181818181818181818")},
			{Holder: "bob", Shares: decimal.RequireFromString("454545454545454545454")},
		},
	}
}

func TestExportComputesChanges(t *testing.T) {
	history := &mockHistory{byDays: map[int]decimal.Decimal{
		7:  decimal.NewFromInt(1_000_000),
		30: decimal.NewFromInt(1_100_000),
	}}
	w := &mockWriter{}
	svc := NewService(history, w)
	svc.now = func() time.Time { return now }

	if err := svc.Export(context.Background(), []domain.Statement{statement()}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if len(w.rows) != 1 {
		t.Fatalf("writer got %d rows, want 1", len(w.rows))
	}

	row := w.rows[0]
	if row.WeekChange == nil || !row.WeekChange.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("WeekChange = %v, want 0.1", row.WeekChange)
	}
	if row.MonthChange == nil || !row.MonthChange.IsZero() {
		t.Errorf("MonthChange = %v, want 0", row.MonthChange)
	}
	if row.QuarterChange != nil || row.YearChange != nil {
		t.Errorf("changes without history should be nil: %v %v", row.QuarterChange, row.YearChange)
	}
}

func TestExportWithoutHistory(t *testing.T) {
	w := &mockWriter{}
	svc := NewService(nil, w)

	if err := svc.Export(context.Background(), []domain.Statement{statement()}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if w.rows[0].WeekChange != nil {
		t.Errorf("WeekChange = %v, want nil", w.rows[0].WeekChange)
	}
}

func TestExportHistoryErrorIsNotFatal(t *testing.T) {
	w := &mockWriter{}
	svc := NewService(&mockHistory{err: errors.New("db down")}, w)

	if err := svc.Export(context.Background(), []domain.Statement{statement()}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if len(w.rows) != 1 {
		t.Errorf("writer got %d rows, want 1", len(w.rows))
	}
}

func TestExportRunsEveryWriter(t *testing.T) {
	failing := &mockWriter{err: errors.New("quota exceeded")}
	ok := &mockWriter{}
	svc := NewService(nil, failing, ok)

	err := svc.Export(context.Background(), []domain.Statement{statement()})
	if err == nil {
		t.Fatal("expected error from failing writer")
	}
	if len(ok.rows) != 1 {
		t.Error("second writer should still receive the rows")
	}
}

func TestComputeChange(t *testing.T) {
	zero := decimal.Zero
	past := decimal.NewFromInt(200)

	tests := []struct {
		name    string
		current decimal.Decimal
		past    *decimal.Decimal
		want    *decimal.Decimal
	}{
		{"no history", decimal.NewFromInt(100), nil, nil},
		{"zero history", decimal.NewFromInt(100), &zero, nil},
		{"halved", decimal.NewFromInt(100), &past, ptr(decimal.RequireFromString("-0.5"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeChange(tt.current, tt.past)
			if tt.want == nil {
				if got != nil {
					t.Errorf("computeChange() = %s, want nil", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Errorf("computeChange() = %v, want %s", got, tt.want)
			}
		})
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
