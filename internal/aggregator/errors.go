package aggregator

import "errors"

var (
	ErrTraceNotFound   = errors.New("trace not found")
	ErrServiceNotFound = errors.New("service metrics not found")
	ErrSnapshotParse   = errors.New("malformed snapshot")
)
