package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Accruer is a fund whose fees can be settled.
type Accruer interface {
	ID() uuid.UUID
	Accrue(ctx context.Context) error
}

// AccrualWorker periodically settles owner and protocol fees of every fund.
// Settling compounds both fees: the owner fee of each period is charged on a
// supply that includes earlier owner fee shares, and the protocol fee on
// balances already reduced by earlier skims.
type AccrualWorker struct {
	funds    func() []Accruer
	interval time.Duration
}

// NewAccrualWorker creates a new AccrualWorker. funds is called on every run.
func NewAccrualWorker(funds func() []Accruer, interval time.Duration) *AccrualWorker {
	return &AccrualWorker{funds: funds, interval: interval}
}

// Run blocks until the context is cancelled.
func (w *AccrualWorker) Run(ctx context.Context) {
	runEvery(ctx, "AccrualWorker", w.interval, w.accrueAll)
}

// accrueAll accrues every fund; one failing fund does not stop the others.
func (w *AccrualWorker) accrueAll(ctx context.Context) error {
	var errs []error
	for _, f := range w.funds() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Accrue(ctx); err != nil {
			errs = append(errs, fmt.Errorf("fund %s: %w", f.ID(), err))
		}
	}
	return errors.Join(errs...)
}
