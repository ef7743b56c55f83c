package tracklet

import "errors"

// Sentinel errors returned by the engine facade.
var (
	// ErrStopped is returned by every operation after Stop.
	ErrStopped = errors.New("tracklet: engine is stopped")
)
