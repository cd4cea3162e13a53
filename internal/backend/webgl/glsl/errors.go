package glsl

import (
	"errors"
	"fmt"
)

// ErrAssembly is the sentinel wrapped by every AssemblyError.
var ErrAssembly = errors.New("shader assembly failed")

// AssemblyError reports a missing routine body, a dependency cycle or a
// malformed @inline use. It is a programming error, never retried.
type AssemblyError struct {
	Routine string
	Reason  string
}

// Error implements the error interface.
func (e *AssemblyError) Error() string {
	if e.Routine == "" {
		return fmt.Sprintf("%v: %s", ErrAssembly, e.Reason)
	}
	return fmt.Sprintf("%v: routine %s: %s", ErrAssembly, e.Routine, e.Reason)
}

// Unwrap returns ErrAssembly.
func (e *AssemblyError) Unwrap() error {
	return ErrAssembly
}
