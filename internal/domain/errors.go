package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrInvalidRecord indicates a record cannot be tracked (missing ID)
	ErrInvalidRecord = errors.New("record has no id")

	// ErrNotFound indicates the record is neither cached nor in the last fetch
	ErrNotFound = errors.New("record not found")

	// ErrNoURL indicates the record has nothing to open
	ErrNoURL = errors.New("record has no url")

	// ErrUnknownNamespace indicates no configuration exists for a namespace
	ErrUnknownNamespace = errors.New("unknown namespace")

	// ErrNoSource indicates the namespace has no canonical source configured
	ErrNoSource = errors.New("namespace has no source configured")

	// ErrSourceUnavailable indicates the canonical source is unreachable
	ErrSourceUnavailable = errors.New("source is unreachable")

	// ErrAuthFailed indicates the source rejected our credentials
	ErrAuthFailed = errors.New("source rejected credentials")
)
