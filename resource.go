package bridge

import "errors"

// Resource pairs an initializer with a disposer. It has no lifecycle of its
// own: every Use call initializes a fresh value and disposes of it before
// returning, whatever the outcome in between.
type Resource[T any] struct {
	initialize func() (T, error)
	dispose    func(T) error
}

// NewResource constructs the pairing without side effects. Neither function
// runs until Use.
func NewResource[T any](initialize func() (T, error), dispose func(T) error) *Resource[T] {
	return &Resource[T]{initialize: initialize, dispose: dispose}
}

// Use initializes the resource, runs op on it, and always disposes of it
// afterwards. An initializer failure is returned as is and neither op nor
// the disposer runs. When op fails, its error is primary and a disposer
// failure is attached with errors.Join; both remain visible to errors.Is.
func (r *Resource[T]) Use(op func(T) error) error {
	res, err := r.initialize()
	if err != nil {
		return err
	}

	opErr := op(res)
	if dispErr := r.dispose(res); dispErr != nil {
		return errors.Join(opErr, dispErr)
	}
	return opErr
}

// UseResource is Use for operations that produce a value. The value of a
// successful op is returned even when disposal fails afterwards; the
// disposer error is surfaced alongside it. On op failure the zero value is
// returned with the same error precedence as Use.
func UseResource[T, R any](r *Resource[T], op func(T) (R, error)) (R, error) {
	var zero R

	res, err := r.initialize()
	if err != nil {
		return zero, err
	}

	out, opErr := op(res)
	dispErr := r.dispose(res)
	if opErr != nil {
		if dispErr != nil {
			return zero, errors.Join(opErr, dispErr)
		}
		return zero, opErr
	}
	return out, dispErr
}
