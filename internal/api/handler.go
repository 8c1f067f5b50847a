// Package api serves the pricing and fund operations over JSON/HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/fund"
	"github.com/mtlprog/hexa/internal/price"
	"github.com/mtlprog/hexa/internal/registry"
	"github.com/mtlprog/hexa/internal/snapshot"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// EventLister reads the stored event history of a fund.
type EventLister interface {
	List(ctx context.Context, fundID uuid.UUID, limit int) ([]fund.StoredEvent, error)
}

// Handler provides HTTP endpoints for the accounting API.
type Handler struct {
	catalog    *price.Catalog
	prices     *price.Aggregator
	funds      *registry.Registry
	statements *snapshot.Service
	events     EventLister // optional
}

// NewHandler creates a new API handler. events may be nil when no event
// history is kept.
func NewHandler(catalog *price.Catalog, prices *price.Aggregator, funds *registry.Registry, statements *snapshot.Service, events EventLister) *Handler {
	return &Handler{
		catalog:    catalog,
		prices:     prices,
		funds:      funds,
		statements: statements,
		events:     events,
	}
}

// ListPrimitives handles GET /api/v1/primitives.
func (h *Handler) ListPrimitives(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.List())
}

type addPrimitivesRequest struct {
	Assets     []domain.AssetID   `json:"assets"`
	FeedRefs   []string           `json:"feedRefs"`
	RateAssets []domain.RateAsset `json:"rateAssets"`
	Decimals   []int32            `json:"decimals"`
}

// AddPrimitives handles POST /api/v1/primitives. The lists are parallel and
// registered as one batch.
func (h *Handler) AddPrimitives(w http.ResponseWriter, r *http.Request) {
	var req addPrimitivesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entries, err := price.ZipPrimitives(req.Assets, req.FeedRefs, req.RateAssets, req.Decimals)
	if err != nil {
		writeDomainError(w, "add primitives", err)
		return
	}
	if err := h.catalog.Register(r.Context(), entries); err != nil {
		writeDomainError(w, "add primitives", err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.List())
}

// RemovePrimitive handles DELETE /api/v1/primitives/{asset}.
func (h *Handler) RemovePrimitive(w http.ResponseWriter, r *http.Request) {
	asset := domain.AssetID(r.PathValue("asset"))
	if !h.prices.IsSupportedAsset(asset) {
		writeError(w, http.StatusNotFound, "asset not registered")
		return
	}
	if err := h.catalog.Remove(r.Context(), []domain.AssetID{asset}); err != nil {
		writeDomainError(w, "remove primitive", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type valueRequest struct {
	Items      []domain.ValueItem `json:"items"`
	QuoteAsset domain.AssetID     `json:"quoteAsset"`
}

// ComputeValue handles POST /api/v1/value.
func (h *Handler) ComputeValue(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.prices.ComputeTotalValue(r.Context(), req.Items, req.QuoteAsset)
	if err != nil {
		writeDomainError(w, "compute value", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GenerateStatements handles POST /api/v1/statements/generate.
func (h *Handler) GenerateStatements(w http.ResponseWriter, r *http.Request) {
	statements, err := h.statements.Generate(r.Context(), utcDate())
	if err != nil {
		slog.Error("failed to generate statements", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate statements")
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

// limitParam reads the limit query parameter, capped at maxLimit.
func limitParam(r *http.Request, def, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return min(n, maxLimit)
		}
	}
	return def
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrFundNotFound, http.StatusNotFound},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrAssetInUse, http.StatusConflict},
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrInsufficientShares, http.StatusConflict},
	{domain.ErrInsufficientAllowance, http.StatusConflict},
	{domain.ErrUnknownAsset, http.StatusUnprocessableEntity},
	{domain.ErrZeroValue, http.StatusUnprocessableEntity},
	{domain.ErrTransferFailed, http.StatusBadGateway},
	{domain.ErrStalePrice, http.StatusServiceUnavailable},
	{domain.ErrInvalidPrice, http.StatusServiceUnavailable},
	{price.ErrNoPrice, http.StatusServiceUnavailable},
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeDomainError writes err with its mapped status. Unexpected errors are
// logged and hidden from the client.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
