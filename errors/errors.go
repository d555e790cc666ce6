package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrNotConnected     = fmt.Errorf("not connected")
	ErrBusClosed        = fmt.Errorf("bus closed")
	ErrLogClosed        = fmt.Errorf("log closed")
	ErrMalformedPayload = fmt.Errorf("malformed payload")
)
