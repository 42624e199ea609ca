package postgres

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datafed/fednode/pkg/fednode"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction. Begin is used where a multi-row change must commit as one.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements fednode.DataRepository using PostgreSQL for package
// records and a fednode.BlobStore for file payloads. File revisions are
// rows; each revision's payload lives under its own blob key, so appending
// never touches earlier revisions.
type Repository struct {
	db    DBTX
	blobs fednode.BlobStore
}

// New creates a new PostgreSQL repository
func New(db DBTX, blobs fednode.BlobStore) fednode.DataRepository {
	return &Repository{db: db, blobs: blobs}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool, blobs fednode.BlobStore) fednode.DataRepository {
	return &Repository{db: pool, blobs: blobs}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "identifier") || strings.Contains(pgErr.ConstraintName, "data_package") {
				return fednode.ErrIdentifierConflict
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fednode.ErrPackageNotFound
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fednode.ErrPackageNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Package operations

func (r *Repository) Create(ctx context.Context, pkg *fednode.DataPackage, files []fednode.FileContent) (*fednode.DataPackage, error) {
	created := *pkg
	if created.Key == uuid.Nil {
		created.Key = uuid.New()
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = created.CreatedAt
	}

	var blobKeys []string
	created.Files = make([]fednode.PackageFile, 0, len(files))
	for _, file := range files {
		key := blobKey(created.Key, 0, file.Name)
		size, checksum, err := r.uploadBlob(ctx, key, file.Reader)
		if err != nil {
			r.cleanupBlobs(ctx, blobKeys)
			return nil, fmt.Errorf("storing file %q: %w", file.Name, err)
		}
		blobKeys = append(blobKeys, key)
		created.Files = append(created.Files, fednode.PackageFile{
			Name:     file.Name,
			Format:   file.Format,
			Size:     size,
			Checksum: checksum,
		})
	}
	created.Checksum, created.Size = summarize(created.Files)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	insertPackage := `
		INSERT INTO data_package (
			key, title, created_by, published_in, shared_in, tags,
			checksum, size, archived, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := tx.Exec(ctx, insertPackage,
		created.Key, created.Title, created.CreatedBy, created.PublishedIn,
		created.SharedIn, created.Tags, created.Checksum, created.Size,
		created.Archived, created.CreatedAt, created.UpdatedAt); err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return nil, r.handlePostgresError("create package", err)
	}

	insertIdentifier := `
		INSERT INTO package_identifier (value, package_key, scheme, relation)
		VALUES ($1, $2, $3, $4)`
	for _, id := range created.Identifiers {
		if _, err := tx.Exec(ctx, insertIdentifier, id.Value, created.Key, id.Scheme, id.Relation); err != nil {
			r.cleanupBlobs(ctx, blobKeys)
			return nil, r.handlePostgresError("register identifier", err)
		}
	}

	insertFile := `
		INSERT INTO package_file (
			package_key, name, position, revision, format, size, checksum, blob_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i, entry := range created.Files {
		if _, err := tx.Exec(ctx, insertFile,
			created.Key, entry.Name, i, 0, entry.Format, entry.Size,
			entry.Checksum, blobKeys[i], created.CreatedAt); err != nil {
			r.cleanupBlobs(ctx, blobKeys)
			return nil, r.handlePostgresError("create package file", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return &created, nil
}

func (r *Repository) Get(ctx context.Context, key uuid.UUID) (*fednode.DataPackage, error) {
	// Tombstoned packages stay resolvable; callers see deleted_at.
	query := `
		SELECT key, title, created_by, published_in, shared_in, tags,
		       checksum, size, archived, created_at, updated_at, deleted_at
		FROM data_package WHERE key = $1`

	var pkg fednode.DataPackage
	err := r.db.QueryRow(ctx, query, key).Scan(
		&pkg.Key, &pkg.Title, &pkg.CreatedBy, &pkg.PublishedIn, &pkg.SharedIn,
		&pkg.Tags, &pkg.Checksum, &pkg.Size, &pkg.Archived,
		&pkg.CreatedAt, &pkg.UpdatedAt, &pkg.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fednode.ErrPackageNotFound
		}
		return nil, r.handlePostgresError("get package", err)
	}

	if err := r.loadFiles(ctx, &pkg); err != nil {
		return nil, err
	}
	if err := r.loadIdentifiers(ctx, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *Repository) GetByAlternativeIdentifier(ctx context.Context, value string) (*fednode.DataPackage, error) {
	var key uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT package_key FROM package_identifier WHERE value = $1`, value).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fednode.ErrPackageNotFound
		}
		return nil, r.handlePostgresError("get package by identifier", err)
	}
	return r.Get(ctx, key)
}

func (r *Repository) Update(ctx context.Context, pkg *fednode.DataPackage, files []fednode.FileContent, mode fednode.UpdateMode) error {
	updatedAt := pkg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	type stagedFile struct {
		name     string
		position int
		revision int
		format   string
		size     int64
		checksum string
		blobKey  string
	}
	var staged []stagedFile
	var blobKeys []string
	for _, file := range files {
		var maxRevision, position int
		err := r.db.QueryRow(ctx, `
			SELECT COALESCE(MAX(revision), -1), COALESCE(MIN(position), -1)
			FROM package_file WHERE package_key = $1 AND name = $2`,
			pkg.Key, file.Name).Scan(&maxRevision, &position)
		if err != nil {
			r.cleanupBlobs(ctx, blobKeys)
			return r.handlePostgresError("stage package file", err)
		}
		if position < 0 {
			err := r.db.QueryRow(ctx, `
				SELECT COALESCE(MAX(position) + 1, 0)
				FROM package_file WHERE package_key = $1`, pkg.Key).Scan(&position)
			if err != nil {
				r.cleanupBlobs(ctx, blobKeys)
				return r.handlePostgresError("stage package file", err)
			}
		}

		revision := maxRevision + 1
		key := blobKey(pkg.Key, revision, file.Name)
		size, checksum, err := r.uploadBlob(ctx, key, file.Reader)
		if err != nil {
			r.cleanupBlobs(ctx, blobKeys)
			return fmt.Errorf("storing file %q: %w", file.Name, err)
		}
		blobKeys = append(blobKeys, key)
		staged = append(staged, stagedFile{
			name:     file.Name,
			position: position,
			revision: revision,
			format:   file.Format,
			size:     size,
			checksum: checksum,
			blobKey:  key,
		})
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE data_package SET
			title = $2, tags = $3, published_in = $4, shared_in = $5, updated_at = $6
		WHERE key = $1`,
		pkg.Key, pkg.Title, pkg.Tags, pkg.PublishedIn, pkg.SharedIn, updatedAt)
	if err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return r.handlePostgresError("update package", err)
	}
	if tag.RowsAffected() == 0 {
		r.cleanupBlobs(ctx, blobKeys)
		return fednode.ErrPackageNotFound
	}

	var obsoleteBlobs []string
	for _, sf := range staged {
		if mode == fednode.UpdateModeOverwrite {
			rows, err := tx.Query(ctx, `
				SELECT blob_key FROM package_file WHERE package_key = $1 AND name = $2`,
				pkg.Key, sf.name)
			if err != nil {
				r.cleanupBlobs(ctx, blobKeys)
				return r.handlePostgresError("update package file", err)
			}
			for rows.Next() {
				var old string
				if err := rows.Scan(&old); err != nil {
					rows.Close()
					r.cleanupBlobs(ctx, blobKeys)
					return r.handlePostgresError("update package file", err)
				}
				obsoleteBlobs = append(obsoleteBlobs, old)
			}
			rows.Close()
			if _, err := tx.Exec(ctx, `
				DELETE FROM package_file WHERE package_key = $1 AND name = $2`,
				pkg.Key, sf.name); err != nil {
				r.cleanupBlobs(ctx, blobKeys)
				return r.handlePostgresError("update package file", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO package_file (
				package_key, name, position, revision, format, size, checksum, blob_key, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pkg.Key, sf.name, sf.position, sf.revision, sf.format, sf.size,
			sf.checksum, sf.blobKey, updatedAt); err != nil {
			r.cleanupBlobs(ctx, blobKeys)
			return r.handlePostgresError("update package file", err)
		}
	}

	// Package checksum and size re-derived from the latest file revisions.
	if _, err := tx.Exec(ctx, `
		UPDATE data_package p SET
			checksum = COALESCE((
				SELECT f.checksum FROM package_file f
				WHERE f.package_key = p.key AND f.position = 0
				ORDER BY f.revision DESC LIMIT 1), ''),
			size = (
				SELECT COALESCE(SUM(latest.size), 0) FROM (
					SELECT DISTINCT ON (name) size FROM package_file
					WHERE package_key = p.key
					ORDER BY name, revision DESC) latest)
		WHERE p.key = $1`, pkg.Key); err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return r.handlePostgresError("update package summary", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.cleanupBlobs(ctx, blobKeys)
		return fmt.Errorf("commit update: %w", err)
	}
	r.cleanupBlobs(ctx, obsoleteBlobs)
	return nil
}

func (r *Repository) Delete(ctx context.Context, key uuid.UUID) error {
	// Soft delete: keep the tombstone's original timestamp on repeat calls.
	tag, err := r.db.Exec(ctx, `
		UPDATE data_package SET deleted_at = COALESCE(deleted_at, NOW()), updated_at = NOW()
		WHERE key = $1`, key)
	if err != nil {
		return r.handlePostgresError("delete package", err)
	}
	if tag.RowsAffected() == 0 {
		return fednode.ErrPackageNotFound
	}
	return nil
}

func (r *Repository) Archive(ctx context.Context, key uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE data_package SET archived = TRUE WHERE key = $1`, key)
	if err != nil {
		return r.handlePostgresError("archive package", err)
	}
	if tag.RowsAffected() == 0 {
		return fednode.ErrPackageNotFound
	}
	return nil
}

// Query operations

func (r *Repository) List(ctx context.Context, query fednode.ListQuery) (*fednode.PackagePage, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	argn := 1

	if query.Scope != "" {
		where = append(where, fmt.Sprintf("(published_in = $%d OR $%d = ANY(shared_in))", argn, argn))
		args = append(args, query.Scope)
		argn++
	}
	if query.From != nil {
		where = append(where, fmt.Sprintf("updated_at >= $%d", argn))
		args = append(args, *query.From)
		argn++
	}
	if query.To != nil {
		where = append(where, fmt.Sprintf("updated_at < $%d", argn))
		args = append(args, *query.To)
		argn++
	}
	if query.FormatID != nil {
		where = append(where, fmt.Sprintf(`COALESCE((
			SELECT NULLIF(f.format, '') FROM package_file f
			WHERE f.package_key = data_package.key AND f.position = 0
			ORDER BY f.revision DESC LIMIT 1), $%d) = $%d`, argn, argn+1))
		args = append(args, fednode.DefaultFormatID, *query.FormatID)
		argn += 2
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM data_package WHERE " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, r.handlePostgresError("count packages", err)
	}

	pageQuery := fmt.Sprintf(`
		SELECT key, title, created_by, published_in, shared_in, tags,
		       checksum, size, archived, created_at, updated_at, deleted_at
		FROM data_package WHERE %s
		ORDER BY updated_at ASC
		OFFSET $%d LIMIT $%d`, whereClause, argn, argn+1)
	args = append(args, query.Offset, query.Limit)

	rows, err := r.db.Query(ctx, pageQuery, args...)
	if err != nil {
		return nil, r.handlePostgresError("list packages", err)
	}
	defer rows.Close()

	var results []*fednode.DataPackage
	for rows.Next() {
		var pkg fednode.DataPackage
		if err := rows.Scan(
			&pkg.Key, &pkg.Title, &pkg.CreatedBy, &pkg.PublishedIn, &pkg.SharedIn,
			&pkg.Tags, &pkg.Checksum, &pkg.Size, &pkg.Archived,
			&pkg.CreatedAt, &pkg.UpdatedAt, &pkg.DeletedAt); err != nil {
			return nil, r.handlePostgresError("list packages", err)
		}
		results = append(results, &pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list packages", err)
	}

	for _, pkg := range results {
		if err := r.loadFiles(ctx, pkg); err != nil {
			return nil, err
		}
		if err := r.loadIdentifiers(ctx, pkg); err != nil {
			return nil, err
		}
	}

	return &fednode.PackagePage{Results: results, Offset: query.Offset, Total: total}, nil
}

func (r *Repository) ListIdentifiers(ctx context.Context, key uuid.UUID, relation fednode.IdentifierRelation) ([]fednode.AlternativeIdentifier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT value, scheme, relation FROM package_identifier
		WHERE package_key = $1 AND relation = $2
		ORDER BY value`, key, relation)
	if err != nil {
		return nil, r.handlePostgresError("list identifiers", err)
	}
	defer rows.Close()

	var result []fednode.AlternativeIdentifier
	for rows.Next() {
		var id fednode.AlternativeIdentifier
		if err := rows.Scan(&id.Value, &id.Scheme, &id.Relation); err != nil {
			return nil, r.handlePostgresError("list identifiers", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// File operations

func (r *Repository) OpenFile(ctx context.Context, key uuid.UUID, name string) (io.ReadCloser, error) {
	var blob string
	err := r.db.QueryRow(ctx, `
		SELECT blob_key FROM package_file
		WHERE package_key = $1 AND name = $2
		ORDER BY revision DESC LIMIT 1`, key, name).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fednode.ErrFileNotFound
		}
		return nil, r.handlePostgresError("open package file", err)
	}
	return r.blobs.Download(ctx, blob)
}

func (r *Repository) Stats(ctx context.Context) (*fednode.RepositoryStats, error) {
	var stats fednode.RepositoryStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size), 0) FROM data_package`).
		Scan(&stats.PackageCount, &stats.TotalSize)
	if err != nil {
		return nil, r.handlePostgresError("repository stats", err)
	}
	return &stats, nil
}

// uploadBlob streams the reader into the blob store, digesting and counting
// it on the way through.
func (r *Repository) uploadBlob(ctx context.Context, key string, reader io.Reader) (int64, string, error) {
	if reader == nil {
		reader = strings.NewReader("")
	}
	hasher := md5.New()
	counter := &countingWriter{}
	tee := io.TeeReader(reader, io.MultiWriter(hasher, counter))
	if err := r.blobs.Upload(ctx, key, tee); err != nil {
		return 0, "", err
	}
	return counter.n, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (r *Repository) cleanupBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = r.blobs.Delete(ctx, key)
	}
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func (r *Repository) loadFiles(ctx context.Context, pkg *fednode.DataPackage) error {
	rows, err := r.db.Query(ctx, `
		SELECT name, position, format, size, checksum FROM (
			SELECT DISTINCT ON (name) name, position, format, size, checksum
			FROM package_file WHERE package_key = $1
			ORDER BY name, revision DESC) latest
		ORDER BY position`, pkg.Key)
	if err != nil {
		return r.handlePostgresError("load package files", err)
	}
	defer rows.Close()

	pkg.Files = nil
	for rows.Next() {
		var f fednode.PackageFile
		var position int
		if err := rows.Scan(&f.Name, &position, &f.Format, &f.Size, &f.Checksum); err != nil {
			return r.handlePostgresError("load package files", err)
		}
		pkg.Files = append(pkg.Files, f)
	}
	return rows.Err()
}

func (r *Repository) loadIdentifiers(ctx context.Context, pkg *fednode.DataPackage) error {
	rows, err := r.db.Query(ctx, `
		SELECT value, scheme, relation FROM package_identifier
		WHERE package_key = $1 ORDER BY value`, pkg.Key)
	if err != nil {
		return r.handlePostgresError("load identifiers", err)
	}
	defer rows.Close()

	pkg.Identifiers = nil
	for rows.Next() {
		var id fednode.AlternativeIdentifier
		if err := rows.Scan(&id.Value, &id.Scheme, &id.Relation); err != nil {
			return r.handlePostgresError("load identifiers", err)
		}
		pkg.Identifiers = append(pkg.Identifiers, id)
	}
	return rows.Err()
}

func blobKey(key uuid.UUID, revision int, name string) string {
	return fmt.Sprintf("%s/%d/%s", key, revision, name)
}

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
