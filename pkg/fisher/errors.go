package fisher

import "errors"

// ErrInvalidArgument is returned for negative counts and unrecognized
// alternatives. It is never transient: the same input always fails.
var ErrInvalidArgument = errors.New("invalid argument")
