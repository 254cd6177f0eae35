package model

import "errors"

// ErrNotFound is returned by the persistence gateways when a referenced row
// does not exist. Handlers treat it as a benign race and stop silently.
var ErrNotFound = errors.New("not found")
