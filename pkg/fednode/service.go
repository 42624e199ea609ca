package fednode

import (
	"context"
	"io"
)

// Service defines the member-node operations served by this adapter
type Service interface {
	// Object operations
	Create(ctx context.Context, session Session, req CreateRequest) (string, error)
	Get(ctx context.Context, identifier string) (io.ReadCloser, error)
	Describe(ctx context.Context, identifier string) (*DescribeResponse, error)
	GetChecksum(ctx context.Context, identifier string, algorithm string) (*Checksum, error)
	ListObjects(ctx context.Context, req ListObjectsRequest) (*ObjectList, error)

	// System metadata operations
	GetSystemMetadata(ctx context.Context, identifier string) (*SystemMetadata, error)
	UpdateSystemMetadata(ctx context.Context, session Session, req UpdateMetadataRequest) error

	// Version chain operations
	Update(ctx context.Context, session Session, req UpdateRequest) (string, error)
	Archive(ctx context.Context, session Session, identifier string) error
	Delete(ctx context.Context, session Session, identifier string) (string, error)

	// Node operations
	GenerateIdentifier(ctx context.Context, session Session, scheme IdentifierScheme, fragment string) (string, error)
	CapacityRemaining(ctx context.Context) (int64, error)
	Health(ctx context.Context) Health

	// IsAuthorized reports whether the session subject may perform the
	// action against the object, resolving the identifier first.
	IsAuthorized(ctx context.Context, session Session, identifier string, action Permission) error
}
