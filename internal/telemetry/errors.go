package telemetry

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	// Payload Errors
	ErrInvalidPayload = errors.ErrInvalidInput
)
