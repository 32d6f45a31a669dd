package localstore

import "errors"

// ErrWriteFailed is returned by Memory when writes are disabled.
var ErrWriteFailed = errors.New("local storage write failed")
