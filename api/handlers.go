/*
handlers.go - HTTP API handlers for the shop book

PURPOSE:
  Exposes the book engine via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every rule to book.Engine.

ENDPOINTS:
  Book:
    GET    /api/snapshot                     Full snapshot
    GET    /api/health                       Liveness and current version

  Products:
    POST   /api/products                     Create product
    PUT    /api/products/{id}                Update product
    DELETE /api/products/{id}                Archive product
    GET    /api/products/low-stock           Products at or below threshold

  Customers:
    POST   /api/customers                    Create customer
    PUT    /api/customers/{id}               Update customer
    DELETE /api/customers/{id}               Delete customer
    GET    /api/customers/{id}/statement     Balance and combined history

  Sales:
    POST   /api/sales                        Record sale
    PUT    /api/sales/{id}                   Update sale
    DELETE /api/sales/{id}                   Delete sale

  Returns:
    POST   /api/returns                      Record return
    PUT    /api/returns/{id}                 Update return
    DELETE /api/returns/{id}                 Delete return
    GET    /api/returns/candidates           Returnable sales for a pair
    POST   /api/returns/preview              FIFO plan without recording

  Stock:
    POST   /api/stock                        Manual IN/OUT entry
    PUT    /api/stock/{id}                   Update manual entry
    DELETE /api/stock/{id}                   Delete manual entry

  Payments:
    POST   /api/payments                     Record credit payment
    PUT    /api/payments/{id}                Update payment
    DELETE /api/payments/{id}                Delete payment

  Export:
    GET    /api/export/xlsx                  Workbook with every view
    GET    /api/export/csv/{view}            One view as CSV

RESPONSES:
  Every mutation answers with the full snapshot, so clients never merge
  deltas.

ERROR HANDLING:
  Errors are returned as JSON with the engine's error kind:
  - 400: Validation errors, invalid quantity/amount/kind, malformed input
  - 404: Referenced entity not found
  - 409: Conflicts with recorded history (returns against a sale,
         linked movements, editing a return as a sale)
  - 422: Business rule (over-return, credit without customer)
  - 500: Storage failures

SEE ALSO:
  - dto.go: Request data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/stockbook/book"
	"github.com/warp/stockbook/export"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *book.Engine
	Log    *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler for the given engine.
func NewHandler(engine *book.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Log: log}
}

// =============================================================================
// BOOK
// =============================================================================

// GetSnapshot returns the full current state.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Snapshot(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

// Health reports liveness and the book version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.Engine.Version()})
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.CreateProduct(r.Context(), req.input())
	h.respond(w, http.StatusCreated, snap, err)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.UpdateProduct(r.Context(), req.update(id))
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.DeleteProduct(r.Context(), id)
	h.respond(w, http.StatusOK, snap, err)
}

// ListLowStock returns active products at or below their threshold.
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.Engine.LowStock(r.Context())
	if products == nil {
		products = []book.Product{}
	}
	h.respond(w, http.StatusOK, products, err)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.CreateCustomer(r.Context(), book.CustomerInput{Name: req.Name, Phone: req.Phone, Note: req.Note})
	h.respond(w, http.StatusCreated, snap, err)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CustomerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.UpdateCustomer(r.Context(), book.CustomerUpdate{ID: id, Name: req.Name, Phone: req.Phone, Note: req.Note})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.DeleteCustomer(r.Context(), id)
	h.respond(w, http.StatusOK, snap, err)
}

// GetStatement returns a customer's balance and combined history.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	stmt, err := h.Engine.CustomerStatement(r.Context(), id)
	h.respond(w, http.StatusOK, stmt, err)
}

// =============================================================================
// SALES
// =============================================================================

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.RecordSale(r.Context(), book.SaleInput{
		ProductID:  req.ProductID,
		Qty:        req.Qty,
		UnitPrice:  req.UnitPrice,
		CustomerID: req.CustomerID,
		Note:       req.Note,
		IsCredit:   req.IsCredit,
	})
	h.respond(w, http.StatusCreated, snap, err)
}

// UpdateSale edits a sale. product_id in the body is ignored.
func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SaleRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.UpdateSale(r.Context(), book.SaleUpdate{
		ID:         id,
		Qty:        req.Qty,
		UnitPrice:  req.UnitPrice,
		CustomerID: req.CustomerID,
		Note:       req.Note,
		IsCredit:   req.IsCredit,
	})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.DeleteSale(r.Context(), id)
	h.respond(w, http.StatusOK, snap, err)
}

// =============================================================================
// RETURNS
// =============================================================================

func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.RecordReturn(r.Context(), req.input())
	h.respond(w, http.StatusCreated, snap, err)
}

func (h *Handler) UpdateReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReturnUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.UpdateReturn(r.Context(), book.ReturnUpdate{
		ID:             id,
		Qty:            req.Qty,
		Note:           req.Note,
		OverrideAmount: req.OverrideAmount,
	})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) DeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.DeleteReturn(r.Context(), id)
	h.respond(w, http.StatusOK, snap, err)
}

// GetReturnCandidates lists returnable sales for ?product_id=&customer_id=.
// Omitting customer_id selects walk-in sales.
func (h *Handler) GetReturnCandidates(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product_id", err)
		return
	}
	var customerID *int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid customer_id", err)
			return
		}
		customerID = &id
	}

	candidates, err := h.Engine.ReturnCandidates(r.Context(), customerID, productID)
	if err == nil && candidates.Sales == nil {
		candidates.Sales = []book.SaleAllocation{}
	}
	h.respond(w, http.StatusOK, candidates, err)
}

// PreviewReturn shows how a return would be allocated and priced.
func (h *Handler) PreviewReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !decode(w, r, &req) {
		return
	}
	preview, err := h.Engine.PreviewReturn(r.Context(), req.input())
	if err == nil && preview.Portions == nil {
		preview.Portions = []book.Portion{}
	}
	h.respond(w, http.StatusOK, preview, err)
}

// =============================================================================
// STOCK ENTRIES
// =============================================================================

func (h *Handler) RecordStockEntry(w http.ResponseWriter, r *http.Request) {
	var req StockEntryRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.RecordStockEntry(r.Context(), book.StockEntryInput{
		ProductID:    req.ProductID,
		Qty:          req.Qty,
		Kind:         req.Kind,
		UnitPrice:    req.UnitPrice,
		Counterparty: req.Counterparty,
		CustomerID:   req.CustomerID,
		Note:         req.Note,
	})
	h.respond(w, http.StatusCreated, snap, err)
}

func (h *Handler) UpdateStockEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StockEntryRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.UpdateStockEntry(r.Context(), book.StockEntryUpdate{
		ID:           id,
		Qty:          req.Qty,
		Kind:         req.Kind,
		UnitPrice:    req.UnitPrice,
		Counterparty: req.Counterparty,
		CustomerID:   req.CustomerID,
		Note:         req.Note,
	})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) DeleteStockEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.DeleteStockEntry(r.Context(), id)
	h.respond(w, http.StatusOK, snap, err)
}

// =============================================================================
// CREDIT PAYMENTS
// =============================================================================

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.RecordCreditPayment(r.Context(), book.PaymentInput{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Note:       req.Note,
	})
	h.respond(w, http.StatusCreated, snap, err)
}

// UpdatePayment changes amount and note. customer_id in the body is ignored.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.Engine.UpdateCreditPayment(r.Context(), book.PaymentUpdate{ID: id, Amount: req.Amount, Note: req.Note})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.DeleteCreditPayment(r.Context(), id)
	h.respond(w, http.StatusOK, snap, err)
}

// =============================================================================
// EXPORT
// =============================================================================

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportXLSX downloads every view as one workbook.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Snapshot(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	// Render fully before writing headers so a failure can still be a 500.
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, snap); err != nil {
		h.Log.Error("xlsx export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to export workbook", err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stockbook-v%d.xlsx"`, snap.Version))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ExportCSV downloads one view as CSV.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	view := chi.URLParam(r, "view")
	snap, err := h.Engine.Snapshot(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, snap, view); err != nil {
		var unknown *export.UnknownViewError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusNotFound, "Unknown export view", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to export view", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, view))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respond writes data with status, or the mapped engine error.
func (h *Handler) respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, status, data)
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	switch book.ErrorKind(err) {
	case "not_found":
		return http.StatusNotFound
	case "validation", "invalid_quantity", "invalid_amount", "invalid_kind":
		return http.StatusBadRequest
	case "over_return", "customer_required_for_credit":
		return http.StatusUnprocessableEntity
	case "sale_has_returns", "return_immutable", "movement_linked":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Kind: book.ErrorKind(err)}

	var (
		over  *book.OverReturnError
		held  *book.SaleHasReturnsError
		field *book.ValidationError
	)
	switch {
	case errors.As(err, &over):
		resp.Available = &over.Available
		resp.Requested = &over.Requested
	case errors.As(err, &held):
		resp.Consumed = &held.Consumed
	case errors.As(err, &field):
		resp.Field = field.Field
	}

	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.Error(err))
		resp.Error = "Internal error"
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, answering 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}
