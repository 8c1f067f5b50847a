package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/hexa/internal/metrics"
)

// NewServer creates an HTTP server with all routes configured.
// Every state-changing route requires the admin key when one is set.
func NewServer(port string, h *Handler, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewMux(h, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers the API routes on a new ServeMux.
func NewMux(h *Handler, adminAPIKey string) *http.ServeMux {
	protect := func(fn http.HandlerFunc) http.Handler {
		if adminAPIKey == "" {
			return fn
		}
		return requireAuth(adminAPIKey, fn)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/primitives", h.ListPrimitives)
	mux.Handle("POST /api/v1/primitives", protect(h.AddPrimitives))
	mux.Handle("DELETE /api/v1/primitives/{asset}", protect(h.RemovePrimitive))
	mux.HandleFunc("POST /api/v1/value", h.ComputeValue)

	mux.HandleFunc("GET /api/v1/funds", h.ListFunds)
	mux.Handle("POST /api/v1/funds", protect(h.CreateFund))
	mux.HandleFunc("GET /api/v1/funds/{id}", h.GetFund)
	mux.HandleFunc("GET /api/v1/funds/{id}/value", h.GetFundValue)
	mux.HandleFunc("GET /api/v1/funds/{id}/statement", h.GetStatement)
	mux.HandleFunc("GET /api/v1/funds/{id}/snapshots", h.ListSnapshots)
	mux.HandleFunc("GET /api/v1/funds/{id}/events", h.ListEvents)
	mux.Handle("POST /api/v1/funds/{id}/invest", protect(h.Invest))
	mux.Handle("POST /api/v1/funds/{id}/redeem", protect(h.Redeem))
	mux.Handle("POST /api/v1/funds/{id}/assets", protect(h.AddTrackedAssets))
	mux.Handle("POST /api/v1/funds/{id}/accrue", protect(h.Accrue))

	mux.Handle("POST /api/v1/statements/generate", protect(h.GenerateStatements))

	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
