package agent

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig

	// Delivery Errors
	ErrDeliveryFailed = errors.ErrorCode("delivery_failed")
	ErrRejected       = errors.ErrorCode("delivery_rejected")

	// Sampling Errors
	ErrSampleFailed = errors.ErrorCode("sample_failed")
)
