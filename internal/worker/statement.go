package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/hexa/internal/domain"
)

// StatementGenerator builds and stores the statements of every fund.
type StatementGenerator interface {
	Generate(ctx context.Context, date time.Time) ([]domain.Statement, error)
}

// AfterStatementHook is called after each successful generation.
type AfterStatementHook interface {
	Export(ctx context.Context, statements []domain.Statement) error
}

// StatementWorker periodically generates fund statements.
type StatementWorker struct {
	generator StatementGenerator
	interval  time.Duration
	hook      AfterStatementHook // optional
}

// NewStatementWorker creates a new StatementWorker with an optional post-generation hook.
func NewStatementWorker(generator StatementGenerator, interval time.Duration, hook AfterStatementHook) *StatementWorker {
	return &StatementWorker{
		generator: generator,
		interval:  interval,
		hook:      hook,
	}
}

// Run blocks until the context is cancelled.
func (w *StatementWorker) Run(ctx context.Context) {
	runEvery(ctx, "StatementWorker", w.interval, w.generate)
}

func (w *StatementWorker) generate(ctx context.Context) error {
	statements, err := w.generator.Generate(ctx, utcDate())
	if err != nil {
		return err
	}
	slog.Info("StatementWorker: generated", "funds", len(statements))

	if w.hook == nil {
		return nil
	}
	if err := w.hook.Export(ctx, statements); err != nil {
		slog.Error("StatementWorker: export hook failed", "error", err)
	}
	return nil
}

// utcDate returns the current date normalized to midnight UTC.
func utcDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
