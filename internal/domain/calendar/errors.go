package calendar

import "errors"

// ErrUnknownPeriod is returned when a period name is not month, week or quarter.
var ErrUnknownPeriod = errors.New("unknown period")
