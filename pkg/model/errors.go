package model

import "errors"

// Error taxonomy for location acquisition and routing. Acquisition errors
// are handled locally with retry/backoff and never abort an active session.
var (
	// ErrPermissionDenied means the user refused geolocation access.
	ErrPermissionDenied = errors.New("geolocation permission denied")
	// ErrPositionUnavailable means the device could not produce a fix.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrAcquisitionTimeout means a fix did not arrive within the deadline.
	ErrAcquisitionTimeout = errors.New("location acquisition timed out")
	// ErrInvalidCoordinates marks a sample or request rejected at the boundary.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrNoLocationAvailable means no fix, no fallback, nothing to return.
	ErrNoLocationAvailable = errors.New("no location available")
	// ErrRecalculationFailed wraps directions-provider failures during reroute.
	ErrRecalculationFailed = errors.New("route recalculation failed")
)
