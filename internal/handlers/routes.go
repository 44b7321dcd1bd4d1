package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/souqly/backend/internal/config"
	"github.com/souqly/backend/internal/middleware"
)

type Router struct {
	Auth                   *middleware.Authenticator
	Redis                  *redis.Client
	IdempotencyTTL         time.Duration
	IdempotencyLockTimeout time.Duration

	Wallet          *WalletHandler
	Transfers       *TransferHandler
	PaymentRequests *PaymentRequestHandler
	Escrow          *EscrowHandler
	Vendors         *VendorHandler
}

// Handler mounts every route under /api/v1. Mutating routes go through the
// idempotency middleware.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(config.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{middleware.IdempotencyHitHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	idempotent := middleware.Idempotency(rt.Redis, rt.IdempotencyTTL, rt.IdempotencyLockTimeout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/apartments/{id}/availability", rt.Escrow.Availability)

		r.Group(func(r chi.Router) {
			r.Use(rt.Auth.Middleware)

			r.Get("/wallet", rt.Wallet.GetWallet)
			r.Get("/wallet/reconcile", rt.Wallet.Reconcile)
			r.Get("/transfers/{id}", rt.Transfers.GetTransfer)
			r.Get("/escrow/{vertical}/{id}", rt.Escrow.GetRecord)
			r.Get("/escrow/{vertical}/{id}/payout", rt.Escrow.Payout)

			r.Group(func(r chi.Router) {
				r.Use(idempotent)

				r.Post("/wallet/fund", rt.Wallet.Fund)
				r.Post("/transfers", rt.Transfers.CreateTransfer)
				r.Post("/payment-requests", rt.PaymentRequests.Create)
				r.Post("/payment-requests/pay", rt.PaymentRequests.Pay)

				r.Post("/orders", rt.Escrow.PlaceOrder)
				r.Post("/orders/{id}/items/{itemId}/unfulfilled", rt.Escrow.MarkItemUnfulfilled)
				r.Post("/rides", rt.Escrow.BookRide)
				r.Post("/apartments/bookings", rt.Escrow.BookApartment)
				r.Post("/food/orders", rt.Escrow.PlaceFoodOrder)
				r.Post("/services/bookings", rt.Escrow.BookService)

				r.Put("/escrow/{vertical}/{id}/status", rt.Escrow.UpdateStatus)
				r.Post("/escrow/{vertical}/{id}/complete", rt.Escrow.Complete)
				r.Post("/escrow/{vertical}/{id}/cancel", rt.Escrow.Cancel)

				r.With(middleware.RequireRole(middleware.RoleAdmin)).
					Post("/admin/vendors/{id}/verify", rt.Vendors.VerifyVendor)
			})
		})
	})

	return r
}
