package embedding

import (
	"errors"
	"fmt"
)

// TransientError marks an embedding failure worth retrying: rate limits,
// connectivity problems, or server-side 5xx responses. Anything else is
// treated as permanent.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
