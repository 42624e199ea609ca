package fednode

import (
	"io"
	"time"
)

// Request DTOs

// CreateRequest contains parameters for creating a new object.
//
// PID is the external identifier the object will be resolvable under; it
// becomes the package's alternative identifier. SystemMetadata is persisted
// verbatim as the object's sidecar document.
type CreateRequest struct {
	PID            string
	Object         io.Reader
	SystemMetadata SystemMetadata
}

// UpdateRequest contains parameters for replacing an object with a new
// version. PID names the object being obsoleted, NewPID the replacement.
type UpdateRequest struct {
	PID            string
	NewPID         string
	Object         io.Reader
	SystemMetadata SystemMetadata
}

// UpdateMetadataRequest contains parameters for revising the system
// metadata of an existing object without touching its content.
type UpdateMetadataRequest struct {
	PID            string
	SystemMetadata SystemMetadata
}

// ListObjectsRequest contains parameters for listing objects. The time
// window is half-open: From inclusive, To exclusive. Count is clamped to
// MaxPageSize; nil Start and Count default to 0 and MaxPageSize.
type ListObjectsRequest struct {
	From     *time.Time
	To       *time.Time
	FormatID *string
	Start    *int
	Count    *int
}
