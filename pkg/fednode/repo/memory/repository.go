package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datafed/fednode/pkg/fednode"
)

// fileRevision is one stored revision of a named package file.
type fileRevision struct {
	data     []byte
	format   string
	size     int64
	checksum string
	storedAt time.Time
}

// Repository implements fednode.DataRepository using in-memory storage.
// Files keep their full revision history; deletes are tombstones so that
// deleted packages remain resolvable by key.
type Repository struct {
	mu          sync.RWMutex
	packages    map[uuid.UUID]*fednode.DataPackage
	files       map[uuid.UUID]map[string][]fileRevision
	identifiers map[string]uuid.UUID // alternative identifier value -> package key
}

// New creates a new in-memory repository
func New() fednode.DataRepository {
	return &Repository{
		packages:    make(map[uuid.UUID]*fednode.DataPackage),
		files:       make(map[uuid.UUID]map[string][]fileRevision),
		identifiers: make(map[string]uuid.UUID),
	}
}

// Package operations

func (r *Repository) Create(ctx context.Context, pkg *fednode.DataPackage, files []fednode.FileContent) (*fednode.DataPackage, error) {
	ingested, err := ingest(files)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to avoid external modifications
	pkgCopy := clonePackage(pkg)
	if pkgCopy.Key == uuid.Nil {
		pkgCopy.Key = uuid.New()
	}
	if _, exists := r.packages[pkgCopy.Key]; exists {
		return nil, fednode.ErrIdentifierConflict
	}
	// Uniqueness is enforced here, at commit time, not by the caller's
	// pre-check.
	for _, id := range pkgCopy.Identifiers {
		if _, exists := r.identifiers[id.Value]; exists {
			return nil, fednode.ErrIdentifierConflict
		}
	}

	now := time.Now().UTC()
	if pkgCopy.CreatedAt.IsZero() {
		pkgCopy.CreatedAt = now
	}
	if pkgCopy.UpdatedAt.IsZero() {
		pkgCopy.UpdatedAt = pkgCopy.CreatedAt
	}

	revisions := make(map[string][]fileRevision, len(ingested))
	pkgCopy.Files = make([]fednode.PackageFile, 0, len(ingested))
	for _, rev := range ingested {
		revisions[rev.name] = []fileRevision{rev.revision}
		pkgCopy.Files = append(pkgCopy.Files, fednode.PackageFile{
			Name:     rev.name,
			Format:   rev.revision.format,
			Size:     rev.revision.size,
			Checksum: rev.revision.checksum,
		})
	}
	pkgCopy.Checksum, pkgCopy.Size = summarize(pkgCopy.Files)

	r.packages[pkgCopy.Key] = pkgCopy
	r.files[pkgCopy.Key] = revisions
	for _, id := range pkgCopy.Identifiers {
		r.identifiers[id.Value] = pkgCopy.Key
	}

	return clonePackage(pkgCopy), nil
}

func (r *Repository) Get(ctx context.Context, key uuid.UUID) (*fednode.DataPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkg, exists := r.packages[key]
	if !exists {
		return nil, fednode.ErrPackageNotFound
	}
	// Tombstoned packages stay resolvable; callers see DeletedAt.
	return clonePackage(pkg), nil
}

func (r *Repository) GetByAlternativeIdentifier(ctx context.Context, value string) (*fednode.DataPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, exists := r.identifiers[value]
	if !exists {
		return nil, fednode.ErrPackageNotFound
	}
	pkg, exists := r.packages[key]
	if !exists {
		return nil, fednode.ErrPackageNotFound
	}
	return clonePackage(pkg), nil
}

func (r *Repository) Update(ctx context.Context, pkg *fednode.DataPackage, files []fednode.FileContent, mode fednode.UpdateMode) error {
	ingested, err := ingest(files)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.packages[pkg.Key]
	if !exists {
		return fednode.ErrPackageNotFound
	}

	existing.Title = pkg.Title
	existing.Tags = append([]string(nil), pkg.Tags...)
	existing.PublishedIn = pkg.PublishedIn
	existing.SharedIn = append([]string(nil), pkg.SharedIn...)
	existing.UpdatedAt = pkg.UpdatedAt
	if existing.UpdatedAt.IsZero() {
		existing.UpdatedAt = time.Now().UTC()
	}

	revisions := r.files[pkg.Key]
	if revisions == nil {
		revisions = make(map[string][]fileRevision)
		r.files[pkg.Key] = revisions
	}
	for _, rev := range ingested {
		if mode == fednode.UpdateModeOverwrite {
			revisions[rev.name] = []fileRevision{rev.revision}
		} else {
			revisions[rev.name] = append(revisions[rev.name], rev.revision)
		}

		entry := fednode.PackageFile{
			Name:     rev.name,
			Format:   rev.revision.format,
			Size:     rev.revision.size,
			Checksum: rev.revision.checksum,
		}
		replaced := false
		for i := range existing.Files {
			if existing.Files[i].Name == rev.name {
				existing.Files[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			existing.Files = append(existing.Files, entry)
		}
	}
	existing.Checksum, existing.Size = summarize(existing.Files)

	return nil
}

func (r *Repository) Delete(ctx context.Context, key uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pkg, exists := r.packages[key]
	if !exists {
		return fednode.ErrPackageNotFound
	}
	if pkg.DeletedAt == nil {
		now := time.Now().UTC()
		pkg.DeletedAt = &now
		pkg.UpdatedAt = now
	}
	return nil
}

func (r *Repository) Archive(ctx context.Context, key uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pkg, exists := r.packages[key]
	if !exists {
		return fednode.ErrPackageNotFound
	}
	pkg.Archived = true
	return nil
}

// Query operations

func (r *Repository) List(ctx context.Context, query fednode.ListQuery) (*fednode.PackagePage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*fednode.DataPackage
	for _, pkg := range r.packages {
		if pkg.DeletedAt != nil {
			continue
		}
		if query.Scope != "" && !inScope(pkg, query.Scope) {
			continue
		}
		if query.From != nil && pkg.UpdatedAt.Before(*query.From) {
			continue
		}
		if query.To != nil && !pkg.UpdatedAt.Before(*query.To) {
			continue
		}
		if query.FormatID != nil && firstFormat(pkg) != *query.FormatID {
			continue
		}
		matched = append(matched, clonePackage(pkg))
	}

	// Sort by updated_at ascending
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})

	total := int64(len(matched))
	if query.Offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[query.Offset:]
	}
	limit := query.Limit
	if limit < 0 {
		limit = 0
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}

	return &fednode.PackagePage{Results: matched, Offset: query.Offset, Total: total}, nil
}

func (r *Repository) ListIdentifiers(ctx context.Context, key uuid.UUID, relation fednode.IdentifierRelation) ([]fednode.AlternativeIdentifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkg, exists := r.packages[key]
	if !exists {
		return nil, fednode.ErrPackageNotFound
	}
	var result []fednode.AlternativeIdentifier
	for _, id := range pkg.Identifiers {
		if id.Relation == relation {
			result = append(result, id)
		}
	}
	return result, nil
}

// File operations

func (r *Repository) OpenFile(ctx context.Context, key uuid.UUID, name string) (io.ReadCloser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.packages[key]; !exists {
		return nil, fednode.ErrPackageNotFound
	}
	revisions := r.files[key][name]
	if len(revisions) == 0 {
		return nil, fednode.ErrFileNotFound
	}
	latest := revisions[len(revisions)-1]
	return io.NopCloser(bytes.NewReader(latest.data)), nil
}

func (r *Repository) Stats(ctx context.Context) (*fednode.RepositoryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &fednode.RepositoryStats{}
	for _, pkg := range r.packages {
		stats.PackageCount++
		stats.TotalSize += pkg.Size
	}
	return stats, nil
}

// RevisionCount reports how many revisions of the named file are stored.
func (r *Repository) RevisionCount(key uuid.UUID, name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.files[key][name])
}

type ingestedFile struct {
	name     string
	revision fileRevision
}

// ingest drains each file stream and digests it with MD5.
func ingest(files []fednode.FileContent) ([]ingestedFile, error) {
	result := make([]ingestedFile, 0, len(files))
	now := time.Now().UTC()
	for _, file := range files {
		var data []byte
		if file.Reader != nil {
			var err error
			data, err = io.ReadAll(file.Reader)
			if err != nil {
				return nil, fmt.Errorf("reading file %q: %w", file.Name, err)
			}
		}
		sum := md5.Sum(data)
		result = append(result, ingestedFile{
			name: file.Name,
			revision: fileRevision{
				data:     data,
				format:   file.Format,
				size:     int64(len(data)),
				checksum: hex.EncodeToString(sum[:]),
				storedAt: now,
			},
		})
	}
	return result, nil
}

// summarize derives the package checksum and size from its files: checksum
// of the first file, sum of all sizes.
func summarize(files []fednode.PackageFile) (string, int64) {
	var checksum string
	var size int64
	if len(files) > 0 {
		checksum = files[0].Checksum
	}
	for _, f := range files {
		size += f.Size
	}
	return checksum, size
}

func inScope(pkg *fednode.DataPackage, scope string) bool {
	if pkg.PublishedIn == scope {
		return true
	}
	for _, s := range pkg.SharedIn {
		if s == scope {
			return true
		}
	}
	return false
}

func firstFormat(pkg *fednode.DataPackage) string {
	if len(pkg.Files) > 0 && pkg.Files[0].Format != "" {
		return pkg.Files[0].Format
	}
	return fednode.DefaultFormatID
}

// clonePackage returns a deep copy to prevent external modifications.
func clonePackage(pkg *fednode.DataPackage) *fednode.DataPackage {
	pkgCopy := *pkg
	pkgCopy.Tags = append([]string(nil), pkg.Tags...)
	pkgCopy.SharedIn = append([]string(nil), pkg.SharedIn...)
	pkgCopy.Identifiers = append([]fednode.AlternativeIdentifier(nil), pkg.Identifiers...)
	pkgCopy.Files = append([]fednode.PackageFile(nil), pkg.Files...)
	if pkg.DeletedAt != nil {
		deletedAt := *pkg.DeletedAt
		pkgCopy.DeletedAt = &deletedAt
	}
	return &pkgCopy
}
