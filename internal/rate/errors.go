package rate

import "errors"

var (
	// ErrUnavailable is returned when the counter store cannot be reached.
	ErrUnavailable = errors.New("rate limiter unavailable")
	// ErrInvalidPolicy is returned for non-positive windows or ceilings.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
