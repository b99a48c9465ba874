package domain

import "errors"

var (
	// ErrCatalogUnavailable is returned when the remote catalog file cannot be read
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrWriteConflict is returned when a write is rejected because the version token is stale
	ErrWriteConflict = errors.New("write rejected: remote file changed since load")

	// ErrWriteFailed is returned when the remote store rejects a write for any other reason
	ErrWriteFailed = errors.New("failed to write catalog")

	// ErrMalformedCSV is returned when an uploaded or fetched file cannot be parsed as CSV
	ErrMalformedCSV = errors.New("malformed CSV")

	// ErrMissingColumns is returned when an upload lacks one of the required columns
	ErrMissingColumns = errors.New("missing required columns")

	// ErrInvalidPassword is returned when the submitted admin password does not match
	ErrInvalidPassword = errors.New("incorrect password")

	// ErrFlowState is returned when a flow operation is invoked in the wrong state
	ErrFlowState = errors.New("operation not valid in current state")
)
