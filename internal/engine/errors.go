package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below.
var (
	ErrValidation = errors.New("validation failed")
	ErrState      = errors.New("invalid state")
	ErrBinding    = errors.New("binding failed")
)

// ValidationError is returned before any mutation when inputs cannot
// produce a complete generation.
type ValidationError struct {
	Reason         string
	MissingClasses []int
	Err            error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation: ")
	b.WriteString(e.Reason)
	if len(e.MissingClasses) > 0 {
		fmt.Fprintf(&b, " (missing classes %v)", e.MissingClasses)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StateError reports a missing controller track.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "state: " + e.Reason }

func (e *StateError) Is(target error) bool { return target == ErrState }

// BindingError reports an adapter rejecting a target mid-generation. The
// generation has been rolled back when it is returned.
type BindingError struct {
	TargetRef string
	Class     int
	Err       error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding %s class %d: %v", e.TargetRef, e.Class, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }

func (e *BindingError) Is(target error) bool { return target == ErrBinding }
