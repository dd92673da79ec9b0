package query

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	ErrNotFound = errors.ErrNotFound
)
