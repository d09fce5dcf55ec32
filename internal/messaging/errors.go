package messaging

import "errors"

// Domain errors. Handlers map them onto transport status codes; anything
// else coming out of the service is a persistence failure.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
)
