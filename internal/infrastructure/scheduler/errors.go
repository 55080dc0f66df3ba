package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrRunInProgress is returned by RunNow while a run is already executing
	ErrRunInProgress = errors.New("run already in progress")
)
