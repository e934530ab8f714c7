package utility

import (
	"github.com/google/uuid"
)

// RunID identifies a single simulation run. IDs are time-ordered so journal
// rows for consecutive runs sort naturally.
type RunID = uuid.UUID

func NewRunID() RunID {
	return uuid.Must(uuid.NewV7())
}
