package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, lock backends and
// publishers return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrNoRowReturned: a write that must return a row returned none
//   - ErrLockNotAcquired: a lease for an identity key is held elsewhere
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound        = errors.New("not found")
	ErrNoRowReturned   = errors.New("no row returned")
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrUnavailable     = errors.New("unavailable")
)
