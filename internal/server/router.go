// Package server assembles the HTTP API from the domain handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	automationservice "subledger/internal/automation/service"
	automationhttp "subledger/internal/automation/transport/http"
	custodyservice "subledger/internal/custody/service"
	custodyhttp "subledger/internal/custody/transport/http"
	"subledger/internal/events"
	eventshttp "subledger/internal/events/transport/http"
	"subledger/internal/indexer"
	indexerhttp "subledger/internal/indexer/transport/http"
	"subledger/internal/payment"
	paymenthttp "subledger/internal/payment/transport/http"
	subscriptionservice "subledger/internal/subscription/service"
	subscriptionhttp "subledger/internal/subscription/transport/http"
	"subledger/pkg/middleware"
)

type Deps struct {
	Subscriptions *subscriptionservice.Service
	Automation    *automationservice.Service
	Custody       *custodyservice.Service
	Outbox        *events.Outbox
	Indexer       *indexer.Indexer
	// Faucet mounts POST /dev/faucet when set.
	Faucet *payment.TokenLedger

	JWTSecret           string
	CORSOrigins         []string
	AutomationRateLimit int

	// /metrics is served only when a password hash is configured.
	MetricsUser         string
	MetricsPasswordHash string
}

func NewRouter(d Deps) http.Handler {
	subHandler := subscriptionhttp.NewSubscriptionHandler(d.Subscriptions)
	autoHandler := automationhttp.NewAutomationHandler(d.Automation)
	custodyHandler := custodyhttp.NewCustodyHandler(d.Custody)
	eventsHandler := eventshttp.NewEventsHandler(d.Outbox, d.CORSOrigins)
	indexerHandler := indexerhttp.NewIndexerHandler(d.Indexer)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if d.MetricsPasswordHash != "" {
		r.With(middleware.BasicAuth(d.MetricsUser, d.MetricsPasswordHash)).Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", subHandler.Config)

		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/", subHandler.Status)
			r.Get("/subscribed", subHandler.IsSubscribed)
			r.Get("/remaining", subHandler.RemainingTime)
			r.Get("/auto-renew", subHandler.GetAutoRenew)
			r.With(middleware.JWTAuth(d.JWTSecret), middleware.ValidateRequest).
				Put("/auto-renew", subHandler.SetAutoRenew)
		})

		r.Get("/events", eventsHandler.Poll)
		r.Get("/events/stream", eventsHandler.Stream)
		r.Get("/indexer/candidates", indexerHandler.Candidates)

		// relays are untrusted and unauthenticated
		r.Group(func(r chi.Router) {
			limit := d.AutomationRateLimit
			if limit <= 0 {
				limit = 120
			}
			r.Use(middleware.NewRateLimiter(limit, time.Minute).Middleware)
			r.Get("/automation/check", autoHandler.Check)
			r.With(middleware.ValidateRequest).Post("/automation/perform", autoHandler.Perform)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(d.JWTSecret))
			r.Post("/subscribe", subHandler.Subscribe)
			r.Get("/custody/balance", custodyHandler.Balance)
			r.With(middleware.ValidateRequest).Post("/custody/withdraw", custodyHandler.Withdraw)
			r.With(middleware.ValidateRequest).Post("/custody/withdraw-all", custodyHandler.WithdrawAll)
		})
	})

	if d.Faucet != nil {
		faucet := paymenthttp.NewFaucetHandler(d.Faucet)
		r.With(middleware.ValidateRequest).Post("/dev/faucet", faucet.Faucet)
	}

	return r
}
