package source

import "errors"

var (
	// ErrEmptyInput is returned when an export has no header line.
	ErrEmptyInput = errors.New("export is empty")
	// ErrNoSession is returned for a FIT file without a session message.
	ErrNoSession = errors.New("fit file has no session")
	// ErrUnsupportedFormat is returned for files that are neither CSV nor FIT.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrStravaStatus is returned when the activity listing answers with a
	// non-2xx status.
	ErrStravaStatus = errors.New("unexpected strava status")
)
