package fednode

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// DataRepository defines the interface for data package persistence. The
// service treats it as opaque storage; all protocol semantics live above it.
//
// Implementations assign the package key on create when none is set, digest
// every ingested file with MD5, and derive the package checksum and size
// from the stored files (checksum of the first file, sum of all sizes).
type DataRepository interface {
	// Package operations
	Create(ctx context.Context, pkg *DataPackage, files []FileContent) (*DataPackage, error)
	Get(ctx context.Context, key uuid.UUID) (*DataPackage, error)
	GetByAlternativeIdentifier(ctx context.Context, value string) (*DataPackage, error)
	Update(ctx context.Context, pkg *DataPackage, files []FileContent, mode UpdateMode) error
	Delete(ctx context.Context, key uuid.UUID) error
	Archive(ctx context.Context, key uuid.UUID) error

	// Query operations
	List(ctx context.Context, query ListQuery) (*PackagePage, error)
	ListIdentifiers(ctx context.Context, key uuid.UUID, relation IdentifierRelation) ([]AlternativeIdentifier, error)

	// File operations. OpenFile returns the latest revision of the named
	// file; the caller closes the reader.
	OpenFile(ctx context.Context, key uuid.UUID, name string) (io.ReadCloser, error)

	// Stats reports usage across all packages, deleted and archived included.
	Stats(ctx context.Context) (*RepositoryStats, error)
}

// BlobStore defines the interface for file payload storage backends used by
// repository implementations that keep package files out of the database.
type BlobStore interface {
	// Upload stores the content read from reader under the given key
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download returns the content stored under the given key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content stored under the given key
	Delete(ctx context.Context, key string) error

	// Meta retrieves storage-level metadata for the given key
	Meta(ctx context.Context, key string) (*BlobMeta, error)
}

// IdentifierMinter issues identifiers in namespaces that require an external
// registration authority.
type IdentifierMinter interface {
	// MintDOI returns a fresh DOI. The fragment, when non-empty, is a
	// caller-supplied hint woven into the suffix.
	MintDOI(ctx context.Context, fragment string) (string, error)
}

// FileContent couples a file name with the byte stream to ingest for it.
// Format is the declared media type and may be empty.
type FileContent struct {
	Name   string
	Format string
	Reader io.Reader
}

// ListQuery filters a repository listing. Scope restricts results to
// packages published in or shared into that scope. The time window is
// half-open: From inclusive, To exclusive, either may be nil. Deleted
// packages are never listed.
type ListQuery struct {
	Scope    string
	From     *time.Time
	To       *time.Time
	FormatID *string
	Offset   int
	Limit    int
}

// PackagePage is one page of a repository listing, ordered by modification
// time ascending. Total counts all matches of the query.
type PackagePage struct {
	Results []*DataPackage
	Offset  int
	Total   int64
}

// BlobMeta contains storage-level metadata about a stored blob.
type BlobMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}
