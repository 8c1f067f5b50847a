// Package metrics provides Prometheus metrics for fund accounting and valuation.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/hexa/internal/domain"
)

var (
	// ValuationsTotal counts valuation calls by outcome.
	ValuationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexa_valuations_total",
			Help: "Total number of valuation calls by result",
		},
		[]string{"result"},
	)

	// ValuationDuration is a histogram of valuation latency.
	ValuationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hexa_valuation_duration_seconds",
			Help:    "Duration of fund and basket valuations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FundEventsTotal counts committed fund events by kind.
	FundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexa_fund_events_total",
			Help: "Total number of committed fund events",
		},
		[]string{"kind"},
	)

	// FundOperationErrorsTotal counts failed fund operations by operation and error kind.
	FundOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexa_fund_operation_errors_total",
			Help: "Total number of fund operations rolled back",
		},
		[]string{"operation", "kind"},
	)

	// PrimitiveChangesTotal counts registered and removed price primitives.
	PrimitiveChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexa_primitive_changes_total",
			Help: "Total number of price primitives registered or removed",
		},
		[]string{"action"},
	)

	// QuoteFetchesTotal counts external quote refreshes by result.
	QuoteFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexa_quote_fetches_total",
			Help: "Total number of external quote refreshes",
		},
		[]string{"result"},
	)
)

// Init registers all collectors with the default registry.
func Init() {
	prometheus.MustRegister(
		ValuationsTotal,
		ValuationDuration,
		FundEventsTotal,
		FundOperationErrorsTotal,
		PrimitiveChangesTotal,
		QuoteFetchesTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordValuation records a valuation call and its outcome.
func RecordValuation(duration time.Duration, err error) {
	ValuationDuration.Observe(duration.Seconds())
	ValuationsTotal.WithLabelValues(ErrorKind(err)).Inc()
}

// RecordFundEvent records a committed fund event.
func RecordFundEvent(kind string) {
	FundEventsTotal.WithLabelValues(kind).Inc()
}

// RecordOperationError records a rolled back fund operation.
func RecordOperationError(operation string, err error) {
	FundOperationErrorsTotal.WithLabelValues(operation, ErrorKind(err)).Inc()
}

// RecordPrimitiveChange records n primitives registered or removed.
func RecordPrimitiveChange(action string, n int) {
	PrimitiveChangesTotal.WithLabelValues(action).Add(float64(n))
}

// RecordQuoteFetch records an external quote refresh.
func RecordQuoteFetch(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	QuoteFetchesTotal.WithLabelValues(result).Inc()
}

var kinds = []struct {
	err  error
	name string
}{
	{domain.ErrInvalidAmount, "invalid_amount"},
	{domain.ErrInsufficientShares, "insufficient_shares"},
	{domain.ErrInsufficientAllowance, "insufficient_allowance"},
	{domain.ErrTransferFailed, "transfer_failed"},
	{domain.ErrUnknownAsset, "unknown_asset"},
	{domain.ErrStalePrice, "stale_price"},
	{domain.ErrInvalidPrice, "invalid_price"},
	{domain.ErrAssetInUse, "asset_in_use"},
	{domain.ErrInvalidInput, "invalid_input"},
	{domain.ErrZeroValue, "zero_value"},
}

// ErrorKind maps err to a low-cardinality label.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}
