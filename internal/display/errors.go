package display

import "errors"

// Domain errors for display enumeration and lookup.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEnumeration is returned by an OutputSource or BusSource when the
	// compositor or the DDC/CI tooling cannot be queried. The tick is skipped.
	ErrEnumeration = errors.New("display: enumeration failed")

	// ErrAmbiguous marks a (make, model) group left unmatched.
	ErrAmbiguous = errors.New("display: ambiguous correlation")

	// ErrDisplayNotFound is returned when a unique id is not in the registry.
	ErrDisplayNotFound = errors.New("display: not found")
)
