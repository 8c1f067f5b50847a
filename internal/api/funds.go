package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/hexa/internal/domain"
	"github.com/mtlprog/hexa/internal/fund"
	"github.com/mtlprog/hexa/internal/snapshot"
)

type fundView struct {
	ID     uuid.UUID   `json:"id"`
	Params fund.Params `json:"params"`
	State  fund.State  `json:"state"`
}

func viewOf(f *fund.Fund) fundView {
	return fundView{ID: f.ID(), Params: f.Params(), State: f.Snapshot()}
}

// lookupFund resolves the {id} path value, writing the error response on failure.
func (h *Handler) lookupFund(w http.ResponseWriter, r *http.Request) (*fund.Fund, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fund id")
		return nil, false
	}
	f, err := h.funds.Get(id)
	if err != nil {
		writeDomainError(w, "get fund", err)
		return nil, false
	}
	return f, true
}

// ListFunds handles GET /api/v1/funds.
func (h *Handler) ListFunds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, lo.Map(h.funds.List(), func(f *fund.Fund, _ int) fundView {
		return viewOf(f)
	}))
}

// CreateFund handles POST /api/v1/funds.
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var params fund.Params
	if !decodeJSON(w, r, &params) {
		return
	}

	f, err := h.funds.Create(r.Context(), params)
	if err != nil {
		writeDomainError(w, "create fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(f))
}

// GetFund handles GET /api/v1/funds/{id}.
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(f))
}

type fundValueResponse struct {
	TotalValue domain.Quote    `json:"totalValue"`
	SharePrice decimal.Decimal `json:"sharePrice"`
}

// GetFundValue handles GET /api/v1/funds/{id}/value.
func (h *Handler) GetFundValue(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}

	q, err := f.TotalValue(r.Context())
	if err != nil {
		writeDomainError(w, "fund value", err)
		return
	}
	sp, err := f.SharePrice(r.Context())
	if err != nil {
		writeDomainError(w, "share price", err)
		return
	}
	writeJSON(w, http.StatusOK, fundValueResponse{TotalValue: q, SharePrice: sp})
}

// GetStatement handles GET /api/v1/funds/{id}/statement with a live statement.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}

	st, err := snapshot.BuildStatement(r.Context(), f, time.Now().UTC())
	if err != nil {
		writeDomainError(w, "statement", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListSnapshots handles GET /api/v1/funds/{id}/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}

	snapshots, err := h.statements.List(r.Context(), f.ID(), limitParam(r, 30, 365))
	if err != nil {
		writeDomainError(w, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Ternary(snapshots == nil, []snapshot.Snapshot{}, snapshots))
}

// ListEvents handles GET /api/v1/funds/{id}/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}
	if h.events == nil {
		writeJSON(w, http.StatusOK, []fund.StoredEvent{})
		return
	}

	events, err := h.events.List(r.Context(), f.ID(), limitParam(r, 100, 1000))
	if err != nil {
		writeDomainError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Ternary(events == nil, []fund.StoredEvent{}, events))
}

type investRequest struct {
	Investor domain.Address  `json:"investor"`
	Amount   decimal.Decimal `json:"amount"`
}

type investResponse struct {
	SharesMinted decimal.Decimal `json:"sharesMinted"`
	Balance      decimal.Decimal `json:"balance"`
}

// Invest handles POST /api/v1/funds/{id}/invest.
func (h *Handler) Invest(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}
	var req investRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Investor == "" {
		writeError(w, http.StatusBadRequest, "investor is required")
		return
	}

	minted, err := f.Invest(r.Context(), req.Investor, req.Amount)
	if err != nil {
		writeDomainError(w, "invest", err)
		return
	}
	writeJSON(w, http.StatusOK, investResponse{SharesMinted: minted, Balance: f.BalanceOf(req.Investor)})
}

type redeemRequest struct {
	Investor domain.Address  `json:"investor"`
	Shares   decimal.Decimal `json:"shares"`
}

type redeemResponse struct {
	Payouts []domain.Payout `json:"payouts"`
	Balance decimal.Decimal `json:"balance"`
}

// Redeem handles POST /api/v1/funds/{id}/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Investor == "" {
		writeError(w, http.StatusBadRequest, "investor is required")
		return
	}

	payouts, err := f.Redeem(r.Context(), req.Investor, req.Shares)
	if err != nil {
		writeDomainError(w, "redeem", err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{Payouts: payouts, Balance: f.BalanceOf(req.Investor)})
}

type trackedAssetsRequest struct {
	Assets []domain.AssetID `json:"assets"`
}

// AddTrackedAssets handles POST /api/v1/funds/{id}/assets.
func (h *Handler) AddTrackedAssets(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}
	var req trackedAssetsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := f.AddTrackedAssets(r.Context(), req.Assets); err != nil {
		writeDomainError(w, "add tracked assets", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(f))
}

// Accrue handles POST /api/v1/funds/{id}/accrue.
func (h *Handler) Accrue(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFund(w, r)
	if !ok {
		return
	}

	if err := f.Accrue(r.Context()); err != nil {
		writeDomainError(w, "accrue", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(f))
}

// utcDate returns the current date normalized to midnight UTC.
func utcDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
