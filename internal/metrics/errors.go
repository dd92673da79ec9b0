package metrics

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidPath   = errors.ErrorCode("metrics_invalid_path")

	// Registration Errors
	ErrRegisterFailed = errors.ErrorCode("metrics_register_failed")
)
