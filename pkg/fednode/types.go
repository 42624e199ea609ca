package fednode

import (
	"time"

	"github.com/google/uuid"
)

// Protocol constants shared by the service, repositories and handlers.
const (
	// ChecksumAlgorithm is the only digest algorithm the node serves.
	ChecksumAlgorithm = "MD5"

	// DefaultFormatID is reported when a package carries no typed content.
	DefaultFormatID = "application/octet-stream"

	// MaxPageSize caps a single listing page.
	MaxPageSize = 20

	// ContentFileName is the name of the primary payload inside a package.
	ContentFileName = "content"

	// SystemMetadataFile is the sidecar document holding the persisted
	// system metadata of a natively published object.
	SystemMetadataFile = "system_metadata.json"

	// PackageTag marks packages managed through this node.
	PackageTag = "fednode"

	// PublicSubject is the subject assigned to unauthenticated sessions.
	PublicSubject = "public"
)

// Permission is an action a subject may request against a stored object.
type Permission string

// Permission constants (typed).
const (
	PermissionRead             Permission = "read"
	PermissionWrite            Permission = "write"
	PermissionChangePermission Permission = "changePermission"
)

// IdentifierScheme is a namespace an external identifier belongs to.
type IdentifierScheme string

// Identifier scheme constants (typed).
const (
	SchemeDOI  IdentifierScheme = "DOI"
	SchemeUUID IdentifierScheme = "UUID"
	SchemeURL  IdentifierScheme = "URL"
)

// IdentifierRelation classifies how an alternative identifier relates to
// the package it is attached to.
type IdentifierRelation string

// RelationIsAlternativeOf marks the externally visible identifier of a
// package whose canonical key is repository-assigned.
const RelationIsAlternativeOf IdentifierRelation = "is-alternative-of"

// UpdateMode controls how a repository update treats the files handed in.
type UpdateMode string

// Update mode constants (typed).
const (
	// UpdateModeAppend adds a new revision of each file, preserving the
	// previous revisions.
	UpdateModeAppend UpdateMode = "append"
	// UpdateModeOverwrite replaces the stored file outright.
	UpdateModeOverwrite UpdateMode = "overwrite"
)

// NodeRef names a node in the federation.
type NodeRef string

// Session identifies the subject a request is performed as.
type Session struct {
	Subject string `json:"subject"`
}

// AlternativeIdentifier is an externally registered identifier attached to
// a data package, e.g. a DOI or the pid an object was created under.
type AlternativeIdentifier struct {
	Value    string             `json:"value"`
	Scheme   IdentifierScheme   `json:"scheme"`
	Relation IdentifierRelation `json:"relation"`
}

// PackageFile describes one named file stored within a data package. Size
// and Checksum always refer to the latest revision.
type PackageFile struct {
	Name     string `json:"name"`
	Format   string `json:"format,omitempty"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// DataPackage is the repository record for one stored object. The first
// entry of Files is the primary content; further entries are sidecars such
// as the system metadata document.
//
// PublishedIn names the scope the object was created in; SharedIn lists
// additional scopes the object is replicated into. Both drive visibility.
type DataPackage struct {
	Key         uuid.UUID               `json:"key"`
	Title       string                  `json:"title,omitempty"`
	CreatedBy   string                  `json:"created_by"`
	PublishedIn string                  `json:"published_in,omitempty"`
	SharedIn    []string                `json:"shared_in,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	Identifiers []AlternativeIdentifier `json:"identifiers,omitempty"`
	Files       []PackageFile           `json:"files"`
	Checksum    string                  `json:"checksum,omitempty"`
	Size        int64                   `json:"size"`
	Archived    bool                    `json:"archived"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	DeletedAt   *time.Time              `json:"deleted_at,omitempty"`
}

// Checksum pairs a digest value with the algorithm that produced it.
type Checksum struct {
	Value     string `json:"value"`
	Algorithm string `json:"algorithm"`
}

// AccessRule grants a set of subjects a set of permissions. Rules are
// descriptive output on metadata documents; authorization decisions ignore
// them.
type AccessRule struct {
	Subjects    []string     `json:"subjects"`
	Permissions []Permission `json:"permissions"`
}

// SystemMetadata is the protocol-mandated description of a stored object.
// Values are immutable; derive changed documents through the With helpers.
type SystemMetadata struct {
	Identifier        string       `json:"identifier"`
	SerialVersion     int64        `json:"serial_version,omitempty"`
	FormatID          string       `json:"format_id"`
	Size              int64        `json:"size"`
	Checksum          Checksum     `json:"checksum"`
	Submitter         string       `json:"submitter,omitempty"`
	RightsHolder      string       `json:"rights_holder,omitempty"`
	OriginNode        NodeRef      `json:"origin_node,omitempty"`
	AuthoritativeNode NodeRef      `json:"authoritative_node,omitempty"`
	AccessRules       []AccessRule `json:"access_rules,omitempty"`
	Obsoletes         string       `json:"obsoletes,omitempty"`
	ObsoletedBy       string       `json:"obsoleted_by,omitempty"`
	Archived          bool         `json:"archived,omitempty"`
	DateUploaded      time.Time    `json:"date_uploaded"`
	DateModified      time.Time    `json:"date_modified"`
}

// WithObsoletes returns a copy pointing back at the object this one
// replaces, with the modification time refreshed.
func (m SystemMetadata) WithObsoletes(pid string, now time.Time) SystemMetadata {
	m.Obsoletes = pid
	m.DateModified = now
	return m
}

// WithObsoletedBy returns a copy pointing forward at the object replacing
// this one, with the modification time refreshed.
func (m SystemMetadata) WithObsoletedBy(pid string, now time.Time) SystemMetadata {
	m.ObsoletedBy = pid
	m.DateModified = now
	return m
}

// WithArchived returns a copy flagged as archived, with the modification
// time refreshed.
func (m SystemMetadata) WithArchived(now time.Time) SystemMetadata {
	m.Archived = true
	m.DateModified = now
	return m
}

// WithDateModified returns a copy with the modification time replaced.
func (m SystemMetadata) WithDateModified(now time.Time) SystemMetadata {
	m.DateModified = now
	return m
}

// WithSerialVersion returns a copy with the serial version replaced.
func (m SystemMetadata) WithSerialVersion(v int64) SystemMetadata {
	m.SerialVersion = v
	return m
}

// DescribeResponse is the compact object summary served without a body.
type DescribeResponse struct {
	FormatID      string    `json:"format_id"`
	ContentLength int64     `json:"content_length"`
	LastModified  time.Time `json:"last_modified"`
	Checksum      Checksum  `json:"checksum"`
	SerialVersion int64     `json:"serial_version"`
}

// ObjectInfo is one entry of a listing page.
type ObjectInfo struct {
	Identifier   string    `json:"identifier"`
	FormatID     string    `json:"format_id"`
	Checksum     Checksum  `json:"checksum"`
	DateModified time.Time `json:"date_modified"`
	Size         int64     `json:"size"`
}

// ObjectList is a page of listing entries. Total counts every object
// matching the query, not just the page returned.
type ObjectList struct {
	Start   int          `json:"start"`
	Count   int          `json:"count"`
	Total   int          `json:"total"`
	Objects []ObjectInfo `json:"objects"`
}

// RepositoryStats aggregates repository-wide usage numbers.
type RepositoryStats struct {
	PackageCount int64 `json:"package_count"`
	TotalSize    int64 `json:"total_size"`
}

// HealthStatus is the domain type for node health states.
type HealthStatus string

// Health status constants (typed).
const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
)

// Health reports node liveness.
type Health struct {
	Status HealthStatus `json:"status"`
	Node   NodeRef      `json:"node"`
}
