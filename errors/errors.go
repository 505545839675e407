package errors

import "fmt"

var (
	ErrBind           = fmt.Errorf("listener cannot bind port")
	ErrConnect        = fmt.Errorf("host unreachable")
	ErrNotConnected   = fmt.Errorf("no active connection")
	ErrAlreadyStarted = fmt.Errorf("core already started")
	ErrWorkerPanic    = fmt.Errorf("worker panic")
)
