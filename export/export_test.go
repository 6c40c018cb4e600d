package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/stockbook/book"
	"github.com/warp/stockbook/book/store"
	"github.com/warp/stockbook/export"
)

func sampleSnapshot(t *testing.T) *book.Snapshot {
	ctx := context.Background()
	ts := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	engine := book.NewEngine(store.NewTxMemory(), book.WithClock(func() time.Time {
		ts = ts.Add(time.Minute)
		return ts
	}))

	qty := book.Dec("20")
	snap, err := engine.CreateProduct(ctx, book.ProductInput{Name: "Beans", SKU: "B-1", UnitPrice: book.Dec("12.5"), InitialQty: &qty})
	require.NoError(t, err)
	productID := snap.Products[0].ID

	snap, err = engine.CreateCustomer(ctx, book.CustomerInput{Name: "Cho", Phone: "010-2222"})
	require.NoError(t, err)
	customerID := snap.Customers[0].ID

	_, err = engine.RecordSale(ctx, book.SaleInput{ProductID: productID, Qty: book.Dec("2"), CustomerID: &customerID, IsCredit: true})
	require.NoError(t, err)
	snap, err = engine.RecordCreditPayment(ctx, book.PaymentInput{CustomerID: customerID, Amount: book.Dec("5")})
	require.NoError(t, err)
	return snap
}

func TestWriteCSV_Balances(t *testing.T) {
	// GIVEN: A customer owing 25 and having paid 5
	// WHEN: Exporting the balances view as CSV
	// THEN: One header and one row with fixed two-place amounts
	snap := sampleSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, snap, "balances"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Customer", records[0][1])
	assert.Equal(t, "Cho", records[1][1])
	assert.Equal(t, "25.00", records[1][3])
	assert.Equal(t, "5.00", records[1][4])
	assert.Equal(t, "20.00", records[1][5])
}

func TestWriteCSV_OptionalColumnsAreEmpty(t *testing.T) {
	snap := sampleSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, snap, "movements"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first: the sale's OUT mirror, then the initial IN receipt.
	assert.Equal(t, "OUT", records[1][2])
	assert.NotEmpty(t, records[1][9])
	assert.Equal(t, "IN", records[2][2])
	assert.Empty(t, records[2][9])
}

func TestWriteCSV_UnknownView(t *testing.T) {
	var buf bytes.Buffer
	err := export.WriteCSV(&buf, &book.Snapshot{}, "invoices")

	var unknown *export.UnknownViewError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "invoices", unknown.View)
	assert.Zero(t, buf.Len())
}

func TestWriteXLSX_OneSheetPerView(t *testing.T) {
	// GIVEN: A populated snapshot
	// WHEN: Exporting it as a workbook
	// THEN: Every view has a sheet and the rows carry the snapshot values
	snap := sampleSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, snap))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Products", "Customers", "Sales", "Movements", "Credits", "Balances"}, f.GetSheetList())

	rows, err := f.GetRows("Products")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Beans", rows[1][1])
	assert.Equal(t, "B-1", rows[1][2])

	rows, err = f.GetRows("Sales")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "sale", rows[1][2])
	assert.Equal(t, "active", rows[1][12])
}

func TestTables_EmptySnapshot(t *testing.T) {
	tables := export.Tables(&book.Snapshot{})
	require.Len(t, tables, len(export.Views))
	for _, table := range tables {
		assert.NotEmpty(t, table.Header, table.Name)
		assert.Empty(t, table.Rows, table.Name)
	}
}
