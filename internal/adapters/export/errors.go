package export

import "errors"

// ErrUnknownFormat is returned for an output format other than csv, parquet
// or json.
var ErrUnknownFormat = errors.New("unknown export format")
