package shared

import "errors"

// ErrRunInProgress indicates another reconciliation run already holds
// the per-pharmacy lock.
var ErrRunInProgress = errors.New("reconciliation run already in progress")
