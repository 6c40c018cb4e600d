/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  Every rejection surfaces a specific kind so callers can react without
  parsing messages. All validation happens before any mutation, so an
  error from an operation always means nothing changed.

ERROR CATEGORIES:
  1. Not found - product/customer/sale/return/movement/credit id unresolved
  2. Business rules - over-return, credit without customer, edits blocked by returns
  3. Input validation - bad quantity, amount, kind or required field

USAGE:
  _, err := engine.RecordReturn(ctx, req)
  var over *book.OverReturnError
  if errors.As(err, &over) {
      // over.Available is what can still be returned
  }

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package book

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuantity is returned for a non-positive quantity where a
	// positive one is required.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidAmount is returned for a non-positive (or negative price)
	// monetary amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOverReturn is returned when a return exceeds what remains returnable
	// for its (customer, product) pair.
	ErrOverReturn = errors.New("return exceeds returnable quantity")

	// ErrCustomerRequiredForCredit is returned for a credit sale without a customer.
	ErrCustomerRequiredForCredit = errors.New("credit sale requires a customer")

	// ErrReturnImmutable is returned when a return is edited through the sale path.
	ErrReturnImmutable = errors.New("returns cannot be edited as sales")

	// ErrSaleHasReturns is returned when an edit or deletion would undercut
	// quantity already consumed by returns.
	ErrSaleHasReturns = errors.New("sale has returns against it")

	// ErrValidation is returned for malformed input (empty names, duplicates).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidKind is returned for an unknown or disallowed movement kind.
	ErrInvalidKind = errors.New("invalid movement kind")

	// ErrMovementLinked is returned when a sale-generated movement is edited
	// directly instead of through its sale or return.
	ErrMovementLinked = errors.New("movement is linked to a sale")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EntityKind names an entity collection.
type EntityKind string

const (
	KindProduct  EntityKind = "product"
	KindCustomer EntityKind = "customer"
	KindSale     EntityKind = "sale"
	KindReturn   EntityKind = "return"
	KindMovement EntityKind = "movement"
	KindCredit   EntityKind = "credit"
)

// NotFoundError names the kind and id that could not be resolved.
type NotFoundError struct {
	Kind EntityKind
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func productNotFound(id int64) error  { return &NotFoundError{Kind: KindProduct, ID: id} }
func customerNotFound(id int64) error { return &NotFoundError{Kind: KindCustomer, ID: id} }
func saleNotFound(id int64) error     { return &NotFoundError{Kind: KindSale, ID: id} }
func returnNotFound(id int64) error   { return &NotFoundError{Kind: KindReturn, ID: id} }
func movementNotFound(id int64) error { return &NotFoundError{Kind: KindMovement, ID: id} }
func creditNotFound(id int64) error   { return &NotFoundError{Kind: KindCredit, ID: id} }

// OverReturnError reports how much could have been returned.
type OverReturnError struct {
	Key       PairKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("return of %s exceeds returnable %s for %s",
		e.Requested, e.Available, e.Key)
}

func (e *OverReturnError) Unwrap() error { return ErrOverReturn }

// SaleHasReturnsError reports the quantity returns already consume.
type SaleHasReturnsError struct {
	SaleID   int64
	Consumed decimal.Decimal
}

func (e *SaleHasReturnsError) Error() string {
	return fmt.Sprintf("sale %d has %s returned against it", e.SaleID, e.Consumed)
}

func (e *SaleHasReturnsError) Unwrap() error { return ErrSaleHasReturns }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// KindError carries the rejected movement kind.
type KindError struct {
	Kind string
}

func (e *KindError) Error() string { return fmt.Sprintf("invalid movement kind %q", e.Kind) }

func (e *KindError) Unwrap() error { return ErrInvalidKind }

func invalidQuantity(q decimal.Decimal) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, q)
}

func invalidAmount(a decimal.Decimal) error {
	return fmt.Errorf("%w: %s", ErrInvalidAmount, a)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid caller input or
// a business rule, as opposed to a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrOverReturn) ||
		errors.Is(err, ErrCustomerRequiredForCredit) ||
		errors.Is(err, ErrReturnImmutable) ||
		errors.Is(err, ErrSaleHasReturns) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrMovementLinked)
}

// ErrorKind returns a stable machine-readable name for the error, or
// "internal" when it is not one of the engine's kinds.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrOverReturn):
		return "over_return"
	case errors.Is(err, ErrCustomerRequiredForCredit):
		return "customer_required_for_credit"
	case errors.Is(err, ErrReturnImmutable):
		return "return_immutable"
	case errors.Is(err, ErrSaleHasReturns):
		return "sale_has_returns"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, ErrMovementLinked):
		return "movement_linked"
	}
	return "internal"
}
