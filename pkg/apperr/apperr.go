package apperr

import "errors"

// AccessDeniedError reports an unsatisfied access requirement. It is always
// raised before any mutation takes place.
type AccessDeniedError struct {
	msg string
}

func (e *AccessDeniedError) Error() string { return e.msg }

func NewAccessDenied(msg string) error { return &AccessDeniedError{msg: msg} }

func IsAccessDenied(err error) bool {
	var target *AccessDeniedError
	return errors.As(err, &target)
}

// BadInputError reports caller-supplied data that violates a structural
// invariant, including reference failures surfaced by the entity store.
type BadInputError struct {
	msg string
}

func (e *BadInputError) Error() string { return e.msg }

func NewBadInput(msg string) error { return &BadInputError{msg: msg} }

func IsBadInput(err error) bool {
	var target *BadInputError
	return errors.As(err, &target)
}

// ObjectStateError reports an operation invoked on an instance that has not
// been created or loaded yet.
type ObjectStateError struct {
	msg string
}

func (e *ObjectStateError) Error() string { return e.msg }

func NewObjectState(msg string) error { return &ObjectStateError{msg: msg} }

func IsObjectState(err error) bool {
	var target *ObjectStateError
	return errors.As(err, &target)
}
