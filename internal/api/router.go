/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware, such as for authentication and rate limiting.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openclearing/settlement-service/internal/app"
)

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, jwtSecret string, limiter *app.RedisRateLimiter, rateLimitPerMinute int) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Secret-bearing endpoints: settlement and cancellation of hash time
	// locked payments authenticate by knowledge of the secret, not by token.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter, rateLimitPerMinute))

		r.Post("/htlc/transfer", h.HTLCTransferHandler)
		r.Post("/htlc/unlock", h.HTLCUnlockHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Use(RateLimitMiddleware(limiter, rateLimitPerMinute))

		// Money movement
		r.Post("/credit", h.CreditHandler)
		r.Post("/debit", h.DebitHandler)
		r.Post("/transfer", h.TransferHandler)
		r.Post("/lock", h.LockHandler)
		r.Post("/unlock", h.UnlockHandler)

		// Allowances
		r.Post("/approve", h.ApproveHandler)
		r.Get("/allowance", h.AllowanceHandler)
		r.Post("/allowance-transfer", h.AllowanceTransferHandler)

		// Hash time locked payments, creation and lookup.
		r.Post("/htlc", h.HTLCCreateHandler)
		r.Get("/accounts/{account}/htlc/{id}", h.HTLCInfoHandler)

		// Queries
		r.Get("/accounts/{account}", h.AccountInfoHandler)
		r.Get("/banks/{bank}", h.BankInfoHandler)
		r.Get("/banks/{bank}/transfers/{id}", h.TransferInfoHandler)
		r.Get("/banks/{bank}/correspondents/{counterpart}", h.CorrespondentInfoHandler)
		r.Get("/iban/{iban}", h.DecodeIBANHandler)

		// Back office
		r.Route("/admin", func(r chi.Router) {
			r.Post("/accounts", h.RegisterAccountHandler)
			r.Delete("/accounts/{account}", h.UnregisterAccountHandler)
			r.Post("/accounts/{account}/toggle-active", h.ToggleAccountActiveHandler)
			r.Post("/accounts/{account}/whitelist", h.WhitelistHandler)
			r.Delete("/accounts/{account}/whitelist", h.RemoveFromWhitelistHandler)
			r.Put("/accounts/{account}/attributes/num", h.SetNumAttributeHandler)
			r.Put("/accounts/{account}/attributes/str", h.SetStrAttributeHandler)

			r.Post("/correspondents", h.RegisterCorrespondentHandler)
			r.Delete("/banks/{bank}/correspondents/{counterpart}", h.UnregisterCorrespondentHandler)
			r.Post("/credit-nostro", h.CreditNostroHandler)
			r.Post("/netting", h.RequestNettingHandler)

			r.Get("/banks/{bank}/pending", h.PendingTransfersHandler)
			r.Post("/banks/{bank}/decisions", h.DecideTransferHandler)
		})
	})

	return r
}
