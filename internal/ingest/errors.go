package ingest

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	ErrInvalidInput = errors.ErrInvalidInput
	ErrCanceled     = errors.ErrTimeout
)
