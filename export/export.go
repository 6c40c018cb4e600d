/*
Package export renders a book snapshot as spreadsheet tables.

VIEWS:
  products, customers, sales, movements, credits, balances

FORMATS:
  xlsx.go: one workbook, one sheet per view
  csv.go:  one view per file

Values are kept typed (decimals, times, optional ids) until the writer
formats them, so each format can choose its own cell representation.
*/
package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/book"
)

// Table is one view of the snapshot.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Views lists the exportable views in workbook order.
var Views = []string{"products", "customers", "sales", "movements", "credits", "balances"}

// UnknownViewError is returned for a view name not in Views.
type UnknownViewError struct {
	View string
}

func (e *UnknownViewError) Error() string {
	return fmt.Sprintf("unknown export view %q", e.View)
}

// Tables builds every view of snap.
func Tables(snap *book.Snapshot) []Table {
	tables := make([]Table, 0, len(Views))
	for _, name := range Views {
		t, _ := View(snap, name)
		tables = append(tables, t)
	}
	return tables
}

// View builds a single view by name.
func View(snap *book.Snapshot, name string) (Table, error) {
	switch name {
	case "products":
		return products(snap), nil
	case "customers":
		return customers(snap), nil
	case "sales":
		return sales(snap), nil
	case "movements":
		return movements(snap), nil
	case "credits":
		return credits(snap), nil
	case "balances":
		return balances(snap), nil
	}
	return Table{}, &UnknownViewError{View: name}
}

func products(snap *book.Snapshot) Table {
	t := Table{
		Name:   "products",
		Header: []string{"ID", "Name", "SKU", "Unit price", "Qty", "Low stock threshold", "Low stock", "Note", "Created"},
	}
	for _, p := range snap.Products {
		t.Rows = append(t.Rows, []any{p.ID, p.Name, p.SKU, p.UnitPrice, p.Qty, p.LowStockThreshold, p.IsLowStock(), p.Note, p.CreatedAt})
	}
	return t
}

func customers(snap *book.Snapshot) Table {
	t := Table{Name: "customers", Header: []string{"ID", "Name", "Phone", "Note", "Created"}}
	for _, c := range snap.Customers {
		t.Rows = append(t.Rows, []any{c.ID, c.Name, c.Phone, c.Note, c.CreatedAt})
	}
	return t
}

func sales(snap *book.Snapshot) Table {
	t := Table{
		Name: "sales",
		Header: []string{"ID", "Time", "Type", "Product", "Qty", "Unit price", "Total", "Customer", "Phone",
			"Credit", "Returned", "Remaining", "State", "Origin sale", "Note"},
	}
	for _, s := range snap.Sales {
		kind := "sale"
		if s.IsReturn {
			kind = "return"
		}
		customer := s.CustomerName
		if s.CustomerDeleted {
			customer += " (deleted)"
		}
		t.Rows = append(t.Rows, []any{
			s.ID, s.At, kind, s.ProductName, s.Qty, s.UnitPrice, s.TotalAmount, customer, s.CustomerPhone,
			s.IsCredit, s.Returned, s.Remaining, string(s.State), s.OriginSaleID, s.Note,
		})
	}
	return t
}

func movements(snap *book.Snapshot) Table {
	t := Table{
		Name: "movements",
		Header: []string{"ID", "Time", "Kind", "Product", "Qty", "Unit price", "Total", "Counterparty",
			"Customer", "Sale", "Note"},
	}
	for _, m := range snap.Movements {
		t.Rows = append(t.Rows, []any{
			m.ID, m.At, string(m.Kind), m.ProductName, m.Qty, m.UnitPrice, m.TotalAmount, m.Counterparty,
			m.CustomerName, m.SaleID, m.Note,
		})
	}
	return t
}

func credits(snap *book.Snapshot) Table {
	t := Table{Name: "credits", Header: []string{"ID", "Time", "Type", "Customer", "Phone", "Amount", "Sale", "Note"}}
	for _, c := range snap.Credits {
		kind := "charge"
		if c.IsPayment {
			kind = "payment"
		}
		t.Rows = append(t.Rows, []any{c.ID, c.At, kind, c.CustomerName, c.CustomerPhone, c.Amount, c.SaleID, c.Note})
	}
	return t
}

func balances(snap *book.Snapshot) Table {
	t := Table{
		Name:   "balances",
		Header: []string{"Customer ID", "Customer", "Phone", "Total credit", "Total paid", "Outstanding", "Last activity"},
	}
	for _, b := range snap.Balances {
		t.Rows = append(t.Rows, []any{b.CustomerID, b.CustomerName, b.CustomerPhone, b.TotalCredit, b.TotalPaid, b.Outstanding, b.LastActivity})
	}
	return t
}

// text renders a cell value for text formats. Missing optional values are
// empty strings.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.StringFixed(book.Scale)
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.StringFixed(book.Scale)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(time.RFC3339)
	case *int64:
		if x == nil {
			return ""
		}
		return fmt.Sprint(*x)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	}
	return fmt.Sprint(v)
}
