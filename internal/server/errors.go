package server

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	ErrListenFailed   = errors.ErrorCode("server_listen_failed")
	ErrShutdownFailed = errors.ErrShutdownFailed
	ErrPayloadTooBig  = errors.ErrorCode("payload_too_large")
)
