/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/events/*         Event submission and journal
  /api/resources/*      Ledger state and unit costs
  /api/processes/*      Process registration and cost pools
  /api/agreements/*     Agreements and their commitments
  /api/commitments/*    Commitment lookup and fulfillment
  /api/conservation     Conservation report
  /api/scenarios/*      Demo scenarios
  /*                    Endpoint index page

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Event routes
		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.SubmitEvent)
			r.Get("/", h.ListEvents)
		})

		// Resource routes
		r.Route("/resources", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Get("/{id}", h.GetResource)
			r.Get("/{id}/unit-cost", h.GetUnitCost)
			r.Get("/{id}/events", h.GetResourceEvents)
		})

		// Process routes
		r.Route("/processes", func(r chi.Router) {
			r.Get("/", h.ListProcesses)
			r.Post("/", h.CreateProcess)
			r.Get("/{id}", h.GetProcess)
		})

		// Agreement routes
		r.Route("/agreements", func(r chi.Router) {
			r.Get("/", h.ListAgreements)
			r.Post("/", h.CreateAgreement)
			r.Get("/{id}", h.GetAgreement)
			r.Post("/{id}/close", h.CloseAgreement)
			r.Get("/{id}/commitments", h.ListCommitments)
			r.Post("/{id}/commitments", h.AddCommitment)
		})

		// Commitment routes
		r.Route("/commitments", func(r chi.Router) {
			r.Get("/{id}", h.GetCommitment)
			r.Post("/{id}/fulfill", h.FulfillCommitment)
		})

		// Conservation report
		r.Get("/conservation", h.Conservation)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Plain index page listing the API surface.
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Cost Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Cost Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/resources">/api/resources</a> - Ledger state</li>
<li><a href="/api/events">/api/events</a> - Event journal</li>
<li><a href="/api/processes">/api/processes</a> - Processes and cost pools</li>
<li><a href="/api/agreements">/api/agreements</a> - Agreements</li>
<li><a href="/api/conservation">/api/conservation</a> - Conservation report</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
