package fednode

import (
	"errors"
	"fmt"
)

// Protocol error kinds. Every operation failure unwraps to exactly one of
// these; transports map them to status codes with errors.Is.
var (
	// ErrNotFound indicates an identifier did not resolve to a visible object
	ErrNotFound = errors.New("object not found")

	// ErrIdentifierNotUnique indicates an identifier is already taken
	ErrIdentifierNotUnique = errors.New("identifier not unique")

	// ErrInvalidRequest indicates a request parameter the node cannot honor
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidSystemMetadata indicates a metadata document that is malformed
	// or would corrupt the version chain
	ErrInvalidSystemMetadata = errors.New("invalid system metadata")

	// ErrNotAuthorized indicates the session subject may not perform the action
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotImplemented indicates a capability this node does not offer
	ErrNotImplemented = errors.New("not implemented")

	// ErrServiceFailure indicates an internal failure of the node or its
	// backing repository
	ErrServiceFailure = errors.New("service failure")
)

// Repository-level errors. DataRepository implementations return these;
// the service translates them into protocol error kinds.
var (
	// ErrPackageNotFound indicates no package exists under a key or identifier
	ErrPackageNotFound = errors.New("data package not found")

	// ErrFileNotFound indicates a package has no file under the given name
	ErrFileNotFound = errors.New("package file not found")

	// ErrIdentifierConflict indicates an alternative identifier is already
	// registered to another package
	ErrIdentifierConflict = errors.New("identifier already registered")

	// ErrBlobNotFound indicates a blob store has no object under the given key
	ErrBlobNotFound = errors.New("blob not found")
)

// ProtocolError wraps a protocol error kind with the identifier the failing
// request referred to.
type ProtocolError struct {
	Kind       error
	Identifier string
	Detail     string
}

func (e *ProtocolError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Detail, e.Identifier)
}

func (e *ProtocolError) Unwrap() error {
	return e.Kind
}

func notFound(detail, identifier string) error {
	return &ProtocolError{Kind: ErrNotFound, Identifier: identifier, Detail: detail}
}

func notUnique(detail, identifier string) error {
	return &ProtocolError{Kind: ErrIdentifierNotUnique, Identifier: identifier, Detail: detail}
}

func invalidRequest(detail, identifier string) error {
	return &ProtocolError{Kind: ErrInvalidRequest, Identifier: identifier, Detail: detail}
}

func invalidMetadata(detail, identifier string) error {
	return &ProtocolError{Kind: ErrInvalidSystemMetadata, Identifier: identifier, Detail: detail}
}

func notAuthorized(detail, identifier string) error {
	return &ProtocolError{Kind: ErrNotAuthorized, Identifier: identifier, Detail: detail}
}

func notImplemented(detail string) error {
	return &ProtocolError{Kind: ErrNotImplemented, Detail: detail}
}

func serviceFailure(detail, identifier string, cause error) error {
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", detail, cause)
	}
	return &ProtocolError{Kind: ErrServiceFailure, Identifier: identifier, Detail: detail}
}
