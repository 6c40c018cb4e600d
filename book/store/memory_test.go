package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/book"
	"github.com/warp/stockbook/book/store"
)

type recordingPersister struct {
	state *book.State
	saved []book.ChangeSet
	fail  error
}

func (p *recordingPersister) Load(context.Context) (*book.State, error) {
	if p.state == nil {
		return &book.State{}, nil
	}
	return p.state, nil
}

func (p *recordingPersister) Save(_ context.Context, cs book.ChangeSet) error {
	if p.fail != nil {
		return p.fail
	}
	p.saved = append(p.saved, cs)
	return nil
}

func TestWithTx_ErrorRollsBackRowsAndSequences(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: A transaction inserts a product and then fails
	// THEN: The product is gone and its id is handed out again

	ctx := context.Background()
	m := store.NewTxMemory()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(s book.Store) error {
		s.Products().Put(book.Product{ID: s.Products().NextID(), Name: "Rice"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = m.View(ctx, func(s book.Store) error {
		assert.Empty(t, s.Products().List())
		return nil
	})
	require.NoError(t, err)

	err = m.WithTx(ctx, func(s book.Store) error {
		assert.Equal(t, int64(1), s.Products().NextID())
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{fail: errors.New("disk full")}
	m, err := store.Open(ctx, p)
	require.NoError(t, err)

	err = m.WithTx(ctx, func(s book.Store) error {
		s.Customers().Put(book.Customer{ID: s.Customers().NextID(), Name: "Kim"})
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist changes")
	assert.Empty(t, m.State().Customers)
}

func TestWithTx_SavesChangeSet(t *testing.T) {
	// GIVEN: A store with one product and one charge
	// WHEN: A transaction deletes the product and voids the charge
	// THEN: The change set carries the delete and the voided entry, but no
	//       sequence moves

	ctx := context.Background()
	p := &recordingPersister{state: &book.State{
		Products: []book.Product{{ID: 3, Name: "Rice"}},
		Credits:  []book.CreditEntry{{ID: 8, CustomerID: 1, Amount: book.Dec("10")}},
		Sequences: map[book.EntityKind]int64{
			book.KindProduct: 5,
			book.KindCredit:  8,
		},
	}}
	m, err := store.Open(ctx, p)
	require.NoError(t, err)

	err = m.WithTx(ctx, func(s book.Store) error {
		assert.True(t, s.Products().Delete(3))
		assert.True(t, s.Credits().Void(8))
		assert.False(t, s.Credits().Void(8))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, p.saved, 1)

	cs := p.saved[0]
	assert.Equal(t, []int64{3}, cs.Products.Delete)
	require.Len(t, cs.Credits.Put, 1)
	assert.True(t, cs.Credits.Put[0].Voided)
	assert.Empty(t, cs.Sequences)

	state := m.State()
	assert.Equal(t, int64(5), state.Sequences[book.KindProduct])
	require.Len(t, state.Credits, 1)
	assert.True(t, state.Credits[0].Voided)
}

func TestWithTx_SequencesPersisted(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{}
	m, err := store.Open(ctx, p)
	require.NoError(t, err)

	err = m.WithTx(ctx, func(s book.Store) error {
		s.Sales().Put(book.Sale{ID: s.Sales().NextID()})
		s.Sales().Put(book.Sale{ID: s.Sales().NextID()})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, p.saved, 1)
	assert.Equal(t, int64(2), p.saved[0].Sequences[book.KindSale])
	assert.Len(t, p.saved[0].Sales.Put, 2)
}

func TestCreditLog_AmendAndList(t *testing.T) {
	ctx := context.Background()
	m := store.NewTxMemory()

	err := m.WithTx(ctx, func(s book.Store) error {
		a := s.Credits().Append(book.CreditEntry{CustomerID: 1, Amount: book.Dec("10")})
		b := s.Credits().Append(book.CreditEntry{CustomerID: 1, Amount: book.Dec("20")})
		assert.Equal(t, int64(1), a.ID)
		assert.Equal(t, int64(2), b.ID)

		assert.True(t, s.Credits().Amend(a.ID, func(e *book.CreditEntry) {
			e.Amount = book.Dec("15")
			e.ID = 99
		}))
		assert.True(t, s.Credits().Void(b.ID))
		assert.False(t, s.Credits().Amend(b.ID, func(*book.CreditEntry) {}))

		live := s.Credits().List(false)
		require.Len(t, live, 1)
		assert.Equal(t, int64(1), live[0].ID)
		assert.Equal(t, "15", live[0].Amount.String())
		assert.Len(t, s.Credits().List(true), 2)
		return nil
	})
	require.NoError(t, err)
}
