package domain

import "errors"

// ErrNotFound reports a lookup for an entry or cached image that does
// not exist.
var ErrNotFound = errors.New("not found")
