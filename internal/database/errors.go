package database

import "errors"

var (
	// ErrUnsupportedEngine is returned for engines without a driver.
	ErrUnsupportedEngine = errors.New("unsupported database engine")
	// ErrMissingName is returned when the descriptor has no database name.
	ErrMissingName = errors.New("database name is required")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)
