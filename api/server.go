/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /api/snapshot, /api/health   Read model
  /api/products/*              Catalog
  /api/customers/*             Customers and statements
  /api/sales/*                 Sales
  /api/returns/*               Returns, candidates, preview
  /api/stock/*                 Manual stock entries
  /api/payments/*              Credit payments
  /api/export/*                Spreadsheet and CSV downloads
  /api/scenarios/*             Demo scenarios and reset (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public; run behind a
  trusted proxy.

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

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/health", h.Health)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Get("/low-stock", h.ListLowStock)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
			r.Get("/{id}/statement", h.GetStatement)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Put("/{id}", h.UpdateSale)
			r.Delete("/{id}", h.DeleteSale)
		})

		r.Route("/returns", func(r chi.Router) {
			r.Post("/", h.RecordReturn)
			r.Get("/candidates", h.GetReturnCandidates)
			r.Post("/preview", h.PreviewReturn)
			r.Put("/{id}", h.UpdateReturn)
			r.Delete("/{id}", h.DeleteReturn)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Post("/", h.RecordStockEntry)
			r.Put("/{id}", h.UpdateStockEntry)
			r.Delete("/{id}", h.DeleteStockEntry)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Put("/{id}", h.UpdatePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Route("/export", func(r chi.Router) {
			r.Get("/xlsx", h.ExportXLSX)
			r.Get("/csv/{view}", h.ExportCSV)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetBook)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Stockbook</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Stockbook API</h1>
<ul>
<li><a href="/api/snapshot">/api/snapshot</a> - Full book snapshot</li>
<li><a href="/api/products/low-stock">/api/products/low-stock</a> - Low stock products</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/api/export/xlsx">/api/export/xlsx</a> - Download workbook</li>
</ul>
</body>
</html>`))
	})

	return r
}
