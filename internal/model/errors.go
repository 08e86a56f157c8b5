package model

import "github.com/rotisserie/eris"

// Sentinel errors for the operation-level failure taxonomy. Callers
// classify with eris.Is; absorbed conditions (insufficient baseline,
// dispatch failure) are not errors and never surface through these.
var (
	// ErrInvalidParameter marks malformed inputs rejected before any
	// computation (non-positive threshold/window, bad condition).
	ErrInvalidParameter = eris.New("invalid parameter")

	// ErrNotFound marks a KPI name that is not defined anywhere.
	ErrNotFound = eris.New("not found")

	// ErrNoData marks a KPI that exists but has no observation for the
	// requested date.
	ErrNoData = eris.New("no data")

	// ErrConflict marks a uniqueness violation, e.g. a duplicate
	// automation rule name.
	ErrConflict = eris.New("conflict")
)

// NotFoundf wraps ErrNotFound with reproduction context.
func NotFoundf(format string, args ...any) error {
	return eris.Wrapf(ErrNotFound, format, args...)
}

// NoDataf wraps ErrNoData with reproduction context.
func NoDataf(format string, args ...any) error {
	return eris.Wrapf(ErrNoData, format, args...)
}

// InvalidParameterf wraps ErrInvalidParameter with reproduction context.
func InvalidParameterf(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidParameter, format, args...)
}
