package database

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/medflow/medflow-stock/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or the code is not mapped.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// lock_not_available, serialization_failure, deadlock_detected
	case "55P03":
		return wrapConflict(err, "stock rows are locked by another operation, retry")
	case "40001":
		return wrapConflict(err, "concurrent update detected, retry")
	case "40P01":
		return wrapConflict(err, "deadlock detected, retry")

	default:
		return nil
	}
}

// MapError normalises errors coming out of a transaction. AppErrors and
// context errors pass through, mapped pq errors become AppErrors and the
// rest are returned untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mapped := MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

func wrapConflict(err error, message string) *errors.AppError {
	appErr := errors.ConcurrencyConflict(message)
	appErr.Err = stderrors.Join(errors.ErrConcurrencyConflict, err)
	return appErr
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_nonneg"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "unit_cost_nonneg"):
		return errors.Validation(map[string]string{
			"unit_cost": "must not be negative",
		})

	case strings.Contains(constraint, "receipt_type_valid"):
		return errors.Validation(map[string]string{
			"receipt_type": "must be one of: PURCHASE_ORDER, DIRECT_ADDITION, DELIVERY, REFUND, TRANSFER, ADJUSTMENT",
		})

	case strings.Contains(constraint, "consumer_link"):
		return errors.StateTransition("unit consumer linkage does not match its status")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "reorder_rules"):
		return "a reorder rule already exists for this item and warehouse"
	case strings.Contains(constraint, "dedupe"):
		return "an open alert already exists for this condition"
	default:
		return "a record with these values already exists"
	}
}
