package load

import "errors"

// ErrNotSorted is returned when Compute receives rows out of start order.
var ErrNotSorted = errors.New("activities are not sorted by start time")
