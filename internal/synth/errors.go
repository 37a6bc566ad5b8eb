package synth

import "errors"

var (
	// ErrUnhealthy indicates the target service failed its health check.
	ErrUnhealthy = errors.New("service is not healthy")
	// ErrVerification indicates finished runs did not match what was submitted.
	ErrVerification = errors.New("run verification failed")
)
