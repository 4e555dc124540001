package errors

import "errors"

// Workspace errors.
var (
	ErrMissingCredentials = errors.New("GitHub credentials not found")
	ErrNotFound           = errors.New("not found")
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrInvalidChange      = errors.New("invalid change")
)

// Remote transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
