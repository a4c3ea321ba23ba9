package converter

import "errors"

var (
	// ErrUnsupportedFormat is returned for kinds that never produce a PDF.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrConversionFailed wraps every conversion failure; see FailedError.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrConverterUnavailable is returned by a Converter that cannot run at
	// all (binary missing, cannot start). Only this error trips the breaker.
	ErrConverterUnavailable = errors.New("converter unavailable")
)

// FailedError carries the human-readable reason of a failed conversion.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return ErrConversionFailed.Error() + ": " + e.Reason
}

func (e *FailedError) Unwrap() error {
	return ErrConversionFailed
}
