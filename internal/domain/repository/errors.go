package repository

import "errors"

var (
	// ErrNoData signals an empty scope: nothing to do rather than a failure.
	ErrNoData = errors.New("no data found")
	// ErrNotFound is returned by point lookups.
	ErrNotFound = errors.New("not found")
	// ErrUnresolved is returned when a vendor code maps to no instrument.
	ErrUnresolved = errors.New("vendor code unresolved")
	// ErrRebuildInProgress is returned when another resolver run holds the lock.
	ErrRebuildInProgress = errors.New("symbology rebuild in progress")
)
