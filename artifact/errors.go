package artifact

import "fmt"

var (
	// ErrNotFound is returned when no artifact exists for the given
	// fingerprint in the underlying store.
	ErrNotFound = fmt.Errorf("artifact not found")
)
