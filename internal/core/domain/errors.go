package domain

import "errors"

// Runtime adapter errors
var (
	ErrNameConflict     = errors.New("worker name already in use")
	ErrImageNotFound    = errors.New("worker image not found")
	ErrInstanceNotFound = errors.New("worker instance not found")
)

// Directory client errors
var (
	ErrDirectoryUnavailable = errors.New("meeting directory unavailable")
	ErrMalformedResponse    = errors.New("malformed meeting directory response")
	ErrMeetingNotFound      = errors.New("meeting not found")
)
