package errors

// ErrorCode is the stable, machine-readable name of a failure. It is what
// HTTP error bodies carry in their "code" field.
type ErrorCode string

// Error is a coded error. Messages and data can be attached without losing
// the code or the wrapped cause.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
