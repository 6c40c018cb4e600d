/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON request bodies. Responses are the engine's own types
  (Snapshot, ReturnPreview, CustomerStatement), which already carry JSON
  tags, so there is no response mapping layer.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Small wrappers that are not engine types

DECIMALS:
  Quantities and amounts accept either JSON numbers or strings
  ("12.5" or 12.5). Optional values are pointers; omitted means "use the
  default" (product price, current threshold, computed return amount).

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - book/*.go: Input structs these convert to
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/book"
)

// =============================================================================
// CATALOG
// =============================================================================

type ProductRequest struct {
	Name              string           `json:"name"`
	SKU               string           `json:"sku"`
	UnitPrice         decimal.Decimal  `json:"unit_price"`
	Note              string           `json:"note"`
	LowStockThreshold *decimal.Decimal `json:"low_stock_threshold"`
	InitialQty        *decimal.Decimal `json:"initial_qty"`
}

func (r ProductRequest) input() book.ProductInput {
	return book.ProductInput{
		Name:              r.Name,
		SKU:               r.SKU,
		UnitPrice:         r.UnitPrice,
		Note:              r.Note,
		LowStockThreshold: r.LowStockThreshold,
		InitialQty:        r.InitialQty,
	}
}

func (r ProductRequest) update(id int64) book.ProductUpdate {
	return book.ProductUpdate{
		ID:                id,
		Name:              r.Name,
		SKU:               r.SKU,
		UnitPrice:         r.UnitPrice,
		Note:              r.Note,
		LowStockThreshold: r.LowStockThreshold,
	}
}

type CustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Note  string `json:"note"`
}

// =============================================================================
// SALES AND RETURNS
// =============================================================================

type SaleRequest struct {
	ProductID  int64            `json:"product_id"`
	Qty        decimal.Decimal  `json:"qty"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
	CustomerID *int64           `json:"customer_id"`
	Note       string           `json:"note"`
	IsCredit   bool             `json:"is_credit"`
}

type ReturnRequest struct {
	ProductID      int64            `json:"product_id"`
	CustomerID     *int64           `json:"customer_id"`
	Qty            decimal.Decimal  `json:"qty"`
	Note           string           `json:"note"`
	OverrideAmount *decimal.Decimal `json:"override_amount"`
}

func (r ReturnRequest) input() book.ReturnInput {
	return book.ReturnInput{
		ProductID:      r.ProductID,
		CustomerID:     r.CustomerID,
		Qty:            r.Qty,
		Note:           r.Note,
		OverrideAmount: r.OverrideAmount,
	}
}

// ReturnUpdateRequest cannot move a return to another product or customer.
type ReturnUpdateRequest struct {
	Qty            decimal.Decimal  `json:"qty"`
	Note           string           `json:"note"`
	OverrideAmount *decimal.Decimal `json:"override_amount"`
}

// =============================================================================
// STOCK AND CREDIT
// =============================================================================

type StockEntryRequest struct {
	ProductID    int64            `json:"product_id"`
	Qty          decimal.Decimal  `json:"qty"`
	Kind         string           `json:"kind"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	Counterparty string           `json:"counterparty"`
	CustomerID   *int64           `json:"customer_id"`
	Note         string           `json:"note"`
}

type PaymentRequest struct {
	CustomerID int64           `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
}

// =============================================================================
// MISC
// =============================================================================

// ErrorResponse is the body of every non-2xx response. Kind is the engine's
// machine-readable error kind.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`

	Available *decimal.Decimal `json:"available,omitempty"`
	Requested *decimal.Decimal `json:"requested,omitempty"`
	Consumed  *decimal.Decimal `json:"consumed,omitempty"`
	Field     string           `json:"field,omitempty"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}
