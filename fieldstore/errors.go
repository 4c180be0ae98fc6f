package fieldstore

import "fmt"

// InvalidFieldError reports an access to a field outside the registered set.
type InvalidFieldError struct {
	Field string
}

// Error implements the error interface.
func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("field %q is not registered for this store", e.Field)
}

// TypeMismatchError reports a set whose value type neither matches the
// current value's type nor forms a sequence/sequence pair with it. This is a
// contract violation and is never silently coerced.
type TypeMismatchError struct {
	Field string
	Have  string
	Want  string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q holds %s, cannot merge value of type %s", e.Field, e.Want, e.Have)
}
