package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: the record does not exist
//   - ErrAlreadyUsed: a unique value (member email) is taken
//   - ErrInvalidState: the record is not in a state that allows the change
//     (stock already at zero, transaction already closed)
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
)
