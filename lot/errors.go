package lot

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNoEligibleInspections is returned when a generation finds nothing to batch.
	ErrNoEligibleInspections = errors.New("lot: no eligible inspections")
	// ErrInvalidStateTransition is returned when the lot is not in a status that allows the operation.
	ErrInvalidStateTransition = errors.New("lot: invalid state transition")
	// ErrConcurrentAssignmentConflict signals another transaction claimed the same inspections. Callers may retry.
	ErrConcurrentAssignmentConflict = errors.New("lot: concurrent assignment conflict")
	// ErrPersistenceFailure wraps storage failures that are neither conflicts nor domain errors.
	ErrPersistenceFailure = errors.New("lot: persistence failure")
	ErrLotNotFound        = errors.New("lot: not found")

	ErrInvalidPeriod        = errors.New("lot: period start after period end")
	ErrInvalidPeriodType    = errors.New("lot: invalid period type")
	ErrMissingPaymentMethod = errors.New("lot: missing payment method")
	ErrMissingInspector     = errors.New("lot: missing inspector id")
	ErrMissingActor         = errors.New("lot: missing actor id")
	ErrInvalidStatus        = errors.New("lot: invalid status")
	// ErrMalformedID is returned when an id handed to the store is not a UUID.
	ErrMalformedID = errors.New("lot: malformed id")
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgInvalidText          = "22P02"
)

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidPeriodType) ||
		errors.Is(err, ErrMissingPaymentMethod) ||
		errors.Is(err, ErrMissingInspector) ||
		errors.Is(err, ErrMissingActor) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrMalformedID)
}

func isConflictCode(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
		return true
	default:
		return false
	}
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidText
}

// classify keeps domain errors as they are, turns race-related database errors
// into ErrConcurrentAssignmentConflict, rejected id literals into
// ErrMalformedID and marks everything else as a persistence failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNoEligibleInspections),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrConcurrentAssignmentConflict),
		errors.Is(err, ErrPersistenceFailure),
		errors.Is(err, ErrLotNotFound),
		IsValidation(err):
		return err
	case isConflictCode(err):
		return fmt.Errorf("%w: %w", ErrConcurrentAssignmentConflict, err)
	case isInvalidText(err):
		return fmt.Errorf("%w: %w", ErrMalformedID, err)
	default:
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
}

func invalidTransition(l Lot, to Status) error {
	return fmt.Errorf("%w: lot %s is %s, cannot become %s", ErrInvalidStateTransition, l.ID, l.Status, to)
}
