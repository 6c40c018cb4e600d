/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the book with realistic
	data for demos. Each scenario resets the book and then replays a
	sequence of ordinary engine operations, so the result is exactly what
	a shopkeeper would get by entering the same data by hand.

AVAILABLE SCENARIOS:

	corner-shop:      Several products, walk-in and credit sales, supplier
	                  receipts, a payment, and a product running low
	fifo-returns:     Two sales at different prices, one return priced
	                  oldest first across both
	credit-roundtrip: A credit sale fully returned, leaving nothing owed
	edit-guard:       A partly returned sale that can no longer shrink

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fifo-returns"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(s *seeder)
 3. Add it to the 'loaders' map

NOTE:

	Scenarios reset the book. Only use in development/demo environments.
	Ids keep counting across resets.

SEE ALSO:
  - handlers.go: Other handlers
  - book/engine.go: Reset
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/stockbook/book"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "corner-shop",
		Name:        "Corner Shop",
		Description: "A week of trading: receipts, walk-in and credit sales, a payment, low stock",
	},
	{
		ID:          "fifo-returns",
		Name:        "FIFO Returns",
		Description: "3 sold at 10 then 2 at 12; returning 4 is priced 42",
	},
	{
		ID:          "credit-roundtrip",
		Name:        "Credit Round Trip",
		Description: "A 500 credit sale fully returned settles the debt to 0",
	},
	{
		ID:          "edit-guard",
		Name:        "Edit Guard",
		Description: "A sale with a return against it cannot shrink below the returned quantity",
	},
}

var loaders = map[string]func(s *seeder){
	"corner-shop":      loadCornerShopScenario,
	"fifo-returns":     loadFIFOReturnsScenario,
	"credit-roundtrip": loadCreditRoundTripScenario,
	"edit-guard":       loadEditGuardScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the book and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	snap, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		if _, ok := loaders[req.ScenarioID]; !ok {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.Log.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// ResetBook removes every entity.
func (h *Handler) ResetBook(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Reset(r.Context())
	if err == nil {
		h.mu.Lock()
		h.currentScenario = ""
		h.mu.Unlock()
	}
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) loadScenario(ctx context.Context, id string) (*book.Snapshot, error) {
	load, ok := loaders[id]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if _, err := h.Engine.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset book: %w", err)
	}
	h.currentScenario = ""

	s := newSeeder(ctx, h.Engine)
	load(s)
	if s.err != nil {
		return nil, s.err
	}

	h.currentScenario = id
	h.Log.Info("scenario loaded", zap.String("scenario", id), zap.Int64("version", s.last.Version))
	return s.last, nil
}

// =============================================================================
// SEEDER - Replays operations, stopping at the first error
// =============================================================================

type seeder struct {
	ctx       context.Context
	engine    *book.Engine
	products  map[string]int64
	customers map[string]int64
	last      *book.Snapshot
	err       error
}

func newSeeder(ctx context.Context, engine *book.Engine) *seeder {
	return &seeder{
		ctx:       ctx,
		engine:    engine,
		products:  make(map[string]int64),
		customers: make(map[string]int64),
	}
}

func (s *seeder) apply(step string, op func() (*book.Snapshot, error)) {
	if s.err != nil {
		return
	}
	snap, err := op()
	if err != nil {
		s.err = fmt.Errorf("%s: %w", step, err)
		return
	}
	s.last = snap
}

func (s *seeder) product(name, price, qty, threshold string) {
	in := book.ProductInput{Name: name, UnitPrice: book.Dec(price)}
	if qty != "" {
		q := book.Dec(qty)
		in.InitialQty = &q
	}
	if threshold != "" {
		t := book.Dec(threshold)
		in.LowStockThreshold = &t
	}
	s.apply("create product "+name, func() (*book.Snapshot, error) {
		return s.engine.CreateProduct(s.ctx, in)
	})
	if s.err == nil {
		for _, p := range s.last.Products {
			if p.Name == name {
				s.products[name] = p.ID
			}
		}
	}
}

func (s *seeder) customer(name, phone string) {
	s.apply("create customer "+name, func() (*book.Snapshot, error) {
		return s.engine.CreateCustomer(s.ctx, book.CustomerInput{Name: name, Phone: phone})
	})
	if s.err == nil {
		for _, c := range s.last.Customers {
			if c.Name == name {
				s.customers[name] = c.ID
			}
		}
	}
}

// customerID returns nil for a walk-in ("").
func (s *seeder) customerID(name string) *int64 {
	if name == "" {
		return nil
	}
	id := s.customers[name]
	return &id
}

// sell records a sale and returns its id. An empty price uses the product's.
func (s *seeder) sell(product, customer, qty, price string, credit bool) int64 {
	in := book.SaleInput{
		ProductID:  s.products[product],
		Qty:        book.Dec(qty),
		CustomerID: s.customerID(customer),
		IsCredit:   credit,
	}
	if price != "" {
		p := book.Dec(price)
		in.UnitPrice = &p
	}
	s.apply("sell "+product, func() (*book.Snapshot, error) {
		return s.engine.RecordSale(s.ctx, in)
	})
	return s.newestSaleID()
}

func (s *seeder) giveBack(product, customer, qty string) int64 {
	s.apply("return "+product, func() (*book.Snapshot, error) {
		return s.engine.RecordReturn(s.ctx, book.ReturnInput{
			ProductID:  s.products[product],
			CustomerID: s.customerID(customer),
			Qty:        book.Dec(qty),
		})
	})
	return s.newestSaleID()
}

func (s *seeder) receive(product, qty, price, supplier string) {
	p := book.Dec(price)
	s.apply("receive "+product, func() (*book.Snapshot, error) {
		return s.engine.RecordStockEntry(s.ctx, book.StockEntryInput{
			ProductID:    s.products[product],
			Qty:          book.Dec(qty),
			Kind:         string(book.MovementIn),
			UnitPrice:    &p,
			Counterparty: supplier,
		})
	})
}

func (s *seeder) pay(customer, amount, note string) {
	s.apply("payment from "+customer, func() (*book.Snapshot, error) {
		return s.engine.RecordCreditPayment(s.ctx, book.PaymentInput{
			CustomerID: s.customers[customer],
			Amount:     book.Dec(amount),
			Note:       note,
		})
	})
}

// newestSaleID relies on the snapshot listing sales newest first.
func (s *seeder) newestSaleID() int64 {
	if s.err != nil || len(s.last.Sales) == 0 {
		return 0
	}
	return s.last.Sales[0].ID
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadCornerShopScenario(s *seeder) {
	s.product("Rice 20kg", "45", "12", "")
	s.product("Cooking Oil 1L", "6.5", "30", "10")
	s.product("Sugar 1kg", "2.2", "8", "")
	s.product("Green Tea", "3.75", "", "")

	s.customer("Kim Min-jun", "010-1111-2222")
	s.customer("Lee Seo-yeon", "010-3333-4444")
	s.customer("Park Cafe", "02-555-0100")

	s.receive("Green Tea", "24", "2.1", "Jeju Tea Co")
	s.sell("Rice 20kg", "", "2", "", false)
	s.sell("Cooking Oil 1L", "Kim Min-jun", "4", "", true)
	s.sell("Rice 20kg", "Park Cafe", "3", "44", true)
	s.sell("Sugar 1kg", "Lee Seo-yeon", "5", "", false)
	s.sell("Green Tea", "Park Cafe", "10", "", true)
	s.giveBack("Cooking Oil 1L", "Kim Min-jun", "1")
	s.pay("Park Cafe", "100", "bank transfer")
	s.receive("Rice 20kg", "10", "38", "Mill Co")
}

func loadFIFOReturnsScenario(s *seeder) {
	s.product("Widget", "10", "20", "")
	s.customer("Choi", "010-7777-8888")

	s.sell("Widget", "Choi", "3", "10", true)
	s.sell("Widget", "Choi", "2", "12", true)
	s.giveBack("Widget", "Choi", "4")
}

func loadCreditRoundTripScenario(s *seeder) {
	s.product("Air Conditioner", "500", "3", "1")
	s.customer("Jung", "010-9999-0000")

	s.sell("Air Conditioner", "Jung", "1", "", true)
	s.giveBack("Air Conditioner", "Jung", "1")
}

func loadEditGuardScenario(s *seeder) {
	s.product("Paint 5L", "28", "15", "")
	s.customer("Han Builders", "031-222-3333")

	s.sell("Paint 5L", "Han Builders", "5", "", true)
	s.giveBack("Paint 5L", "Han Builders", "2")
	s.pay("Han Builders", "50", "")
}
