package book

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentInput struct {
	CustomerID int64
	Amount     decimal.Decimal
	Note       string
}

type PaymentUpdate struct {
	ID     int64
	Amount decimal.Decimal
	Note   string
}

// RecordCreditPayment appends a payment that is not tied to any sale.
func (e *Engine) RecordCreditPayment(ctx context.Context, in PaymentInput) (*Snapshot, error) {
	amount, err := positiveAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "record_credit_payment", func(t txn) error {
		c, err := t.customer(&in.CustomerID)
		if err != nil {
			return err
		}
		t.appendCredit(c, nil, amount, true, in.Note)
		return nil
	}, zap.Int64("customer_id", in.CustomerID), zap.String("amount", amount.String()))
}

// UpdateCreditPayment amends a free-standing payment. Entries generated by
// sales and returns are owned by those operations.
func (e *Engine) UpdateCreditPayment(ctx context.Context, in PaymentUpdate) (*Snapshot, error) {
	amount, err := positiveAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "update_credit_payment", func(t txn) error {
		entry, err := t.payment(in.ID)
		if err != nil {
			return err
		}
		t.s.Credits().Amend(entry.ID, func(c *CreditEntry) {
			c.Amount = amount
			c.Note = in.Note
		})
		return nil
	}, zap.Int64("credit_id", in.ID))
}

func (e *Engine) DeleteCreditPayment(ctx context.Context, id int64) (*Snapshot, error) {
	return e.mutate(ctx, "delete_credit_payment", func(t txn) error {
		entry, err := t.payment(id)
		if err != nil {
			return err
		}
		t.s.Credits().Void(entry.ID)
		return nil
	}, zap.Int64("credit_id", id))
}

// payment resolves a live, free-standing payment entry.
func (t txn) payment(id int64) (CreditEntry, error) {
	entry, ok := t.s.Credits().Get(id)
	if !ok || entry.Voided || !entry.IsPayment || entry.SaleID != nil {
		return CreditEntry{}, creditNotFound(id)
	}
	return entry, nil
}

func positiveAmount(a decimal.Decimal) (decimal.Decimal, error) {
	a = Round(a)
	if !a.IsPositive() {
		return a, invalidAmount(a)
	}
	return a, nil
}
