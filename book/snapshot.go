/*
snapshot.go - Full read model returned after every operation

PURPOSE:
  Every mutating call returns the complete state of the book: products,
  customers, sales and returns, stock movements, credit entries and
  balances. Callers never apply deltas, so they cannot drift from the
  engine's state.

MATERIALIZATION:
  The engine materializes a snapshot right after each commit, inside its
  single-writer lock, and writes it to the SnapshotCache. Reads go through
  the cache and fall back to materializing when the cached Version is not
  the engine's current one.

ORDERING:
  Products, customers, balances: by name (case-insensitive), then id
  Sales, movements, credits:     most recent first, by (At, ID) descending

NAMES:
  Historical rows carry name snapshots. The assembler prefers the current
  entity's name when it still exists and falls back to the snapshot once
  the entity is gone.
*/
package book

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Snapshot is the complete, internally consistent view of a book.
type Snapshot struct {
	Version   int64             `json:"version"`
	Products  []Product         `json:"products"`
	Customers []Customer        `json:"customers"`
	Sales     []SaleView        `json:"sales"`
	Movements []StockMovement   `json:"stock_movements"`
	Credits   []CreditEntry     `json:"credits"`
	Balances  []CustomerBalance `json:"customer_balances"`
}

// SaleView is a sale with its derived return state. Returned, Remaining
// and State are empty for returns.
type SaleView struct {
	Sale
	Returned  *decimal.Decimal `json:"returned_qty,omitempty"`
	Remaining *decimal.Decimal `json:"remaining_qty,omitempty"`
	State     SaleState        `json:"state,omitempty"`
}

// SnapshotCache stores the latest materialized snapshot.
type SnapshotCache interface {
	Get(ctx context.Context) (*Snapshot, bool, error)
	Set(ctx context.Context, snap *Snapshot) error
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assemble builds a snapshot from the store.
func Assemble(s Store, version int64) *Snapshot {
	products := s.Products().List()
	customers := s.Customers().List()
	sales := s.Sales().List()
	movements := s.Movements().List()
	credits := s.Credits().List(false)

	names := newNameResolver(products, customers)

	snap := &Snapshot{
		Version:   version,
		Products:  make([]Product, 0, len(products)),
		Customers: customers,
		Sales:     make([]SaleView, 0, len(sales)),
		Movements: make([]StockMovement, 0, len(movements)),
		Credits:   make([]CreditEntry, 0, len(credits)),
		Balances:  Balances(customers, credits),
	}

	for _, p := range products {
		if !p.Archived {
			snap.Products = append(snap.Products, p)
		}
	}
	sort.SliceStable(snap.Products, func(i, j int) bool {
		return byName(snap.Products[i].Name, snap.Products[i].ID, snap.Products[j].Name, snap.Products[j].ID)
	})
	sort.SliceStable(snap.Customers, func(i, j int) bool {
		return byName(snap.Customers[i].Name, snap.Customers[i].ID, snap.Customers[j].Name, snap.Customers[j].ID)
	})

	allocs := AllocateAll(sales)
	for _, sale := range sales {
		sale.ProductName = names.product(sale.ProductID, sale.ProductName)
		sale.CustomerName, sale.CustomerPhone = names.customer(sale.CustomerID, sale.CustomerName, sale.CustomerPhone)
		view := SaleView{Sale: sale}
		if !sale.IsReturn {
			for _, a := range allocs[sale.Key()].Sales {
				if a.Sale.ID == sale.ID {
					returned, remaining := a.Returned, a.Remaining
					view.Returned = &returned
					view.Remaining = &remaining
					view.State = a.State()
					break
				}
			}
		}
		snap.Sales = append(snap.Sales, view)
	}
	sort.SliceStable(snap.Sales, func(i, j int) bool {
		return newerFirst(snap.Sales[i].At.UnixNano(), snap.Sales[i].ID, snap.Sales[j].At.UnixNano(), snap.Sales[j].ID)
	})

	for _, m := range movements {
		m.ProductName = names.product(m.ProductID, m.ProductName)
		m.CustomerName, _ = names.customer(m.CustomerID, m.CustomerName, "")
		snap.Movements = append(snap.Movements, m)
	}
	sort.SliceStable(snap.Movements, func(i, j int) bool {
		return newerFirst(snap.Movements[i].At.UnixNano(), snap.Movements[i].ID, snap.Movements[j].At.UnixNano(), snap.Movements[j].ID)
	})

	for _, c := range credits {
		cid := c.CustomerID
		c.CustomerName, c.CustomerPhone = names.customer(&cid, c.CustomerName, c.CustomerPhone)
		snap.Credits = append(snap.Credits, c)
	}
	sort.SliceStable(snap.Credits, func(i, j int) bool {
		return newerFirst(snap.Credits[i].At.UnixNano(), snap.Credits[i].ID, snap.Credits[j].At.UnixNano(), snap.Credits[j].ID)
	})

	return snap
}

func byName(ni string, idi int64, nj string, idj int64) bool {
	li, lj := strings.ToLower(ni), strings.ToLower(nj)
	if li != lj {
		return li < lj
	}
	return idi < idj
}

func newerFirst(ti int64, idi int64, tj int64, idj int64) bool {
	if ti != tj {
		return ti > tj
	}
	return idi > idj
}

// =============================================================================
// NAME RESOLUTION - lookup, fall back to the stored snapshot
// =============================================================================

type nameResolver struct {
	products  map[int64]Product
	customers map[int64]Customer
}

func newNameResolver(products []Product, customers []Customer) nameResolver {
	r := nameResolver{
		products:  make(map[int64]Product, len(products)),
		customers: make(map[int64]Customer, len(customers)),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	for _, c := range customers {
		r.customers[c.ID] = c
	}
	return r
}

func (r nameResolver) product(id int64, fallback string) string {
	if p, ok := r.products[id]; ok {
		return p.Name
	}
	return fallback
}

func (r nameResolver) customer(id *int64, name, phone string) (string, string) {
	if id == nil {
		return name, phone
	}
	if c, ok := r.customers[*id]; ok {
		return c.Name, c.Phone
	}
	return name, phone
}
