package core

import (
	"errors"
)

// Error taxonomy for the GPU resource layer. Callers match with errors.Is;
// messages carry the offending bounds so failures are debuggable from logs.
var (
	// A malformed argument: wrong type, negative offset, out-of-bounds range.
	ErrInvalidValue = errors.New("invalid value")
	// Operation attempted on a buffer or pool that has already been disposed.
	ErrBufferDisposed = errors.New("buffer already disposed")
	// The driver failed to allocate a backing resource.
	ErrOutOfMemory = errors.New("out of memory")
	// Call on a disposed factory or tracker.
	ErrInvalidOperation = errors.New("invalid operation")
	// The graphics context has been lost.
	ErrContextLost = errors.New("context lost")
	// The backend lacks a required capability, e.g. device read-back.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	ErrUnknown = errors.New("unknown")
)
