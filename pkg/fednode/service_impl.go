package fednode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository DataRepository
	minter     IdentifierMinter
	node       NodeRef
	scope      string
	capacity   int64
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the backing data repository for the service
func WithRepository(repo DataRepository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithIdentifierMinter sets the minting service used for DOI generation
func WithIdentifierMinter(minter IdentifierMinter) Option {
	return func(s *service) {
		s.minter = minter
	}
}

// WithNode sets the node identity reported in synthesized metadata
func WithNode(node NodeRef) Option {
	return func(s *service) {
		s.node = node
	}
}

// WithScope sets the scope name objects are published into and gated by
func WithScope(scope string) Option {
	return func(s *service) {
		s.scope = scope
	}
}

// WithStorageCapacity sets the storage ceiling in bytes used for capacity
// reporting
func WithStorageCapacity(capacity int64) Option {
	return func(s *service) {
		s.capacity = capacity
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.scope == "" {
		return nil, fmt.Errorf("scope name is required")
	}
	if s.node == "" {
		return nil, fmt.Errorf("node identity is required")
	}

	return s, nil
}

// Object operations

func (s *service) Create(ctx context.Context, session Session, req CreateRequest) (string, error) {
	if req.PID == "" {
		return "", invalidRequest("identifier must not be empty", "")
	}
	if err := s.assertUnique(ctx, req.PID); err != nil {
		return "", err
	}

	meta := req.SystemMetadata
	if meta.Identifier == "" {
		meta.Identifier = req.PID
	}
	created := meta.DateModified
	if created.IsZero() {
		created = time.Now().UTC()
	}

	sidecar, err := metadataFile(meta)
	if err != nil {
		return "", err
	}
	pkg := &DataPackage{
		Title:       req.PID,
		CreatedBy:   session.Subject,
		PublishedIn: s.scope,
		Tags:        []string{PackageTag},
		Identifiers: []AlternativeIdentifier{{
			Value:    req.PID,
			Scheme:   SchemeURL,
			Relation: RelationIsAlternativeOf,
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
	files := []FileContent{
		{Name: ContentFileName, Format: meta.FormatID, Reader: req.Object},
		sidecar,
	}

	if _, err := s.repository.Create(ctx, pkg, files); err != nil {
		if errors.Is(err, ErrIdentifierConflict) {
			return "", notUnique("identifier already exists", req.PID)
		}
		return "", serviceFailure("creating data package", req.PID, err)
	}
	return req.PID, nil
}

func (s *service) Get(ctx context.Context, identifier string) (io.ReadCloser, error) {
	pkg, err := s.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(pkg.Files) == 0 {
		return nil, notFound("object has no content file", identifier)
	}
	reader, err := s.repository.OpenFile(ctx, pkg.Key, pkg.Files[0].Name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrPackageNotFound) {
			return nil, notFound("content file not found", identifier)
		}
		return nil, serviceFailure("opening content file", identifier, err)
	}
	return reader, nil
}

func (s *service) Describe(ctx context.Context, identifier string) (*DescribeResponse, error) {
	meta, err := s.GetSystemMetadata(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return &DescribeResponse{
		FormatID:      meta.FormatID,
		ContentLength: meta.Size,
		LastModified:  meta.DateModified,
		Checksum:      meta.Checksum,
		SerialVersion: meta.SerialVersion,
	}, nil
}

func (s *service) GetChecksum(ctx context.Context, identifier string, algorithm string) (*Checksum, error) {
	if err := validateChecksumAlgorithm(algorithm); err != nil {
		return nil, err
	}
	pkg, err := s.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return &Checksum{Value: pkg.Checksum, Algorithm: ChecksumAlgorithm}, nil
}

func (s *service) ListObjects(ctx context.Context, req ListObjectsRequest) (*ObjectList, error) {
	limit := MaxPageSize
	if req.Count != nil && *req.Count < limit {
		limit = *req.Count
	}
	if limit < 0 {
		limit = 0
	}
	offset := 0
	if req.Start != nil && *req.Start > 0 {
		offset = *req.Start
	}

	page, err := s.repository.List(ctx, ListQuery{
		Scope:    s.scope,
		From:     req.From,
		To:       req.To,
		FormatID: req.FormatID,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, serviceFailure("listing data packages", "", err)
	}

	objects := make([]ObjectInfo, 0, len(page.Results))
	for _, pkg := range page.Results {
		meta, err := s.metadataFor(pkg).Load(ctx, pkg)
		if err != nil {
			return nil, err
		}
		identifier := meta.Identifier
		ids, err := s.repository.ListIdentifiers(ctx, pkg.Key, RelationIsAlternativeOf)
		if err != nil {
			return nil, serviceFailure("listing alternative identifiers", identifier, err)
		}
		if len(ids) > 0 {
			identifier = ids[0].Value
		}
		objects = append(objects, ObjectInfo{
			Identifier:   identifier,
			FormatID:     meta.FormatID,
			Checksum:     meta.Checksum,
			DateModified: meta.DateModified,
			Size:         meta.Size,
		})
	}
	return &ObjectList{
		Start:   page.Offset,
		Count:   len(objects),
		Total:   int(page.Total),
		Objects: objects,
	}, nil
}

// System metadata operations

func (s *service) GetSystemMetadata(ctx context.Context, identifier string) (*SystemMetadata, error) {
	pkg, err := s.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	meta, err := s.metadataFor(pkg).Load(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *service) UpdateSystemMetadata(ctx context.Context, session Session, req UpdateMetadataRequest) error {
	pkg, err := s.resolve(ctx, req.PID)
	if err != nil {
		return err
	}
	if err := validateUpdateMetadata(req.SystemMetadata, req.PID); err != nil {
		return err
	}
	if err := authorize(session, pkg, PermissionWrite, req.PID); err != nil {
		return err
	}
	if !s.isNative(pkg) {
		return invalidRequest("system metadata of objects published elsewhere is synthesized and cannot be revised", req.PID)
	}
	if pkg.DeletedAt != nil {
		return notFound("deleted objects can't be updated", req.PID)
	}

	now := time.Now().UTC()
	revision, err := metadataFile(req.SystemMetadata.WithDateModified(now))
	if err != nil {
		return err
	}
	pkg.UpdatedAt = now
	if err := s.repository.Update(ctx, pkg, []FileContent{revision}, UpdateModeAppend); err != nil {
		return serviceFailure("appending metadata revision", req.PID, err)
	}
	return nil
}

// Version chain operations

func (s *service) Update(ctx context.Context, session Session, req UpdateRequest) (string, error) {
	pkg, err := s.resolve(ctx, req.PID)
	if err != nil {
		return "", err
	}
	if err := validateUpdateMetadata(req.SystemMetadata, req.PID); err != nil {
		return "", err
	}
	if req.NewPID == "" {
		return "", invalidRequest("new identifier must not be empty", req.PID)
	}
	if err := s.assertUnique(ctx, req.NewPID); err != nil {
		return "", err
	}
	if err := authorize(session, pkg, PermissionWrite, req.PID); err != nil {
		return "", err
	}
	current, err := nativeMetadata{repository: s.repository}.Load(ctx, pkg)
	if err != nil {
		return "", err
	}
	if err := validateNotObsoleted(current, req.PID); err != nil {
		return "", err
	}
	if pkg.DeletedAt != nil {
		return "", notFound("deleted objects can't be updated", req.PID)
	}

	now := time.Now().UTC()
	revision, err := metadataFile(current.WithObsoletedBy(req.NewPID, now))
	if err != nil {
		return "", err
	}
	pkg.UpdatedAt = now
	if err := s.repository.Update(ctx, pkg, []FileContent{revision}, UpdateModeAppend); err != nil {
		return "", serviceFailure("appending metadata revision", req.PID, err)
	}

	return s.Create(ctx, session, CreateRequest{
		PID:            req.NewPID,
		Object:         req.Object,
		SystemMetadata: req.SystemMetadata.WithObsoletes(req.PID, now),
	})
}

func (s *service) Archive(ctx context.Context, session Session, identifier string) error {
	pkg, err := s.resolve(ctx, identifier)
	if err != nil {
		return err
	}
	if err := authorize(session, pkg, PermissionWrite, identifier); err != nil {
		return err
	}
	current, err := nativeMetadata{repository: s.repository}.Load(ctx, pkg)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	revision, err := metadataFile(current.WithArchived(now))
	if err != nil {
		return err
	}
	pkg.UpdatedAt = now
	if err := s.repository.Update(ctx, pkg, []FileContent{revision}, UpdateModeAppend); err != nil {
		return serviceFailure("appending metadata revision", identifier, err)
	}
	if err := s.repository.Archive(ctx, pkg.Key); err != nil {
		return serviceFailure("setting repository archive flag", identifier, err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, session Session, identifier string) (string, error) {
	pkg, err := s.resolve(ctx, identifier)
	if err != nil {
		return "", err
	}
	if err := s.repository.Delete(ctx, pkg.Key); err != nil {
		return "", serviceFailure("deleting data package", identifier, err)
	}
	return identifier, nil
}

// Node operations

func (s *service) GenerateIdentifier(ctx context.Context, session Session, scheme IdentifierScheme, fragment string) (string, error) {
	switch {
	case strings.EqualFold(string(scheme), string(SchemeDOI)):
		if s.minter == nil {
			return "", notImplemented("no identifier minter configured for scheme DOI")
		}
		doi, err := s.minter.MintDOI(ctx, fragment)
		if err != nil {
			return "", serviceFailure("minting identifier", "", err)
		}
		return doi, nil
	case strings.EqualFold(string(scheme), string(SchemeUUID)):
		return uuid.New().String(), nil
	default:
		return "", notImplemented(fmt.Sprintf("identifier scheme %q is not supported", scheme))
	}
}

func (s *service) CapacityRemaining(ctx context.Context) (int64, error) {
	stats, err := s.repository.Stats(ctx)
	if err != nil {
		return 0, serviceFailure("reading repository stats", "", err)
	}
	return s.capacity - stats.TotalSize, nil
}

func (s *service) Health(ctx context.Context) Health {
	health := Health{Status: HealthStatusHealthy, Node: s.node}
	if _, err := s.repository.Stats(ctx); err != nil {
		health.Status = HealthStatusDegraded
	}
	return health
}

func (s *service) IsAuthorized(ctx context.Context, session Session, identifier string, action Permission) error {
	pkg, err := s.resolve(ctx, identifier)
	if err != nil {
		return err
	}
	return authorize(session, pkg, action, identifier)
}

// assertUnique fails with IdentifierNotUnique when the identifier already
// resolves to a visible object. The check is advisory; repositories close
// the remaining race with a uniqueness constraint at commit time.
func (s *service) assertUnique(ctx context.Context, identifier string) error {
	_, err := s.resolve(ctx, identifier)
	if err == nil {
		return notUnique("identifier already exists", identifier)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// validateChecksumAlgorithm treats an absent algorithm as the default and
// requires case-insensitive equality otherwise.
func validateChecksumAlgorithm(algorithm string) error {
	if algorithm == "" || strings.EqualFold(algorithm, ChecksumAlgorithm) {
		return nil
	}
	return invalidRequest(fmt.Sprintf("unsupported checksum algorithm %q, expected %s", algorithm, ChecksumAlgorithm), "")
}
