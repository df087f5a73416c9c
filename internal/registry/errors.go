package registry

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timed out")
	ErrInvalidEnvelope  = errors.New("envelope cannot be serialized")
)
