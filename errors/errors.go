package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrHandleDisconnected = fmt.Errorf("limiter handle disconnected")
	ErrLimiterUnavailable = fmt.Errorf("rate limiter unavailable")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSendQueueFull      = fmt.Errorf("send queue full")
	ErrRoomUnavailable    = fmt.Errorf("room unavailable")
)
