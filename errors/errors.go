package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrInvalidExpression = fmt.Errorf("invalid expression")
	ErrNothingToRevoke   = fmt.Errorf("nothing to revoke")
	ErrStoreWrite        = fmt.Errorf("store write failure")
	ErrNotConnected      = fmt.Errorf("transport not connected")
)
