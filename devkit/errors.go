package devkit

import "errors"

var (
	// ErrNoResource is returned when an entity has no link for the
	// requested resource, e.g. a widget without a stream.
	ErrNoResource = errors.New("devkit: no such resource")

	// ErrNotConnected is returned by Session.Customer before Connect.
	ErrNotConnected = errors.New("devkit: not connected")

	// ErrAlreadyFetching is returned when a batch is asked for a page while
	// a previous request is still in flight.
	ErrAlreadyFetching = errors.New("devkit: batch is already fetching")
)
