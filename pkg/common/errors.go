package common

import (
	"fmt"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// DataIntegrityError reports a missing or malformed upstream record. It is
// fatal: the run aborts and the offending record is surfaced to the operator.
type DataIntegrityError struct {
	Record string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s: %s", e.Reason, e.Record)
}

// InvalidFillInputError reports a malformed order or candle value reaching
// the fill model. Fatal for that order only; the order is dropped.
type InvalidFillInputError struct {
	Field string
	Value string
}

func (e *InvalidFillInputError) Error() string {
	return fmt.Sprintf("invalid fill input: %s=%s", e.Field, e.Value)
}

// InsufficientCapitalError rejects an order whose projected cost exceeds
// available cash. The order is dropped, the run continues.
type InsufficientCapitalError struct {
	Required  fixed.Point
	Available fixed.Point
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("insufficient capital: required %s, available %s", e.Required, e.Available)
}
