package ledger

import (
	"errors"
	"fmt"
)

// ErrAlreadyInitialized is returned when a ledger already exists for an agent.
var ErrAlreadyInitialized = errors.New("ledger already initialized")

// StorageError wraps an IO failure on a ledger or transcript file. Prior
// records are never affected because every append is a single line write.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
