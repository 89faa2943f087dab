package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/pkg/errors"
)

// InsufficientStockError carries the figures of a failed allocation.
type InsufficientStockError struct {
	ItemID    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available %s, requested %s", e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return errors.ErrInsufficientStock
}

// NewInsufficientStock builds the 400 response error with the typed cause
// attached, so both errors.As targets resolve.
func NewInsufficientStock(itemID string, available, requested decimal.Decimal) *errors.AppError {
	appErr := errors.InsufficientStock(itemID, available.String(), requested.String())
	appErr.Err = &InsufficientStockError{ItemID: itemID, Available: available, Requested: requested}
	return appErr
}
