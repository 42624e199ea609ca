package fednode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// metadataProvider yields the system metadata document for a package. Two
// variants exist: nativeMetadata reads the persisted sidecar document,
// foreignMetadata synthesizes one from package fields. The variant is
// selected once per package by scope comparison, never per field.
type metadataProvider interface {
	Load(ctx context.Context, pkg *DataPackage) (SystemMetadata, error)
}

// metadataFor selects the provider for a package.
func (s *service) metadataFor(pkg *DataPackage) metadataProvider {
	if s.isNative(pkg) {
		return nativeMetadata{repository: s.repository}
	}
	return foreignMetadata{node: s.node}
}

// isNative reports whether the package was published through this node.
// Comparison is case-insensitive, unlike the visibility rule.
func (s *service) isNative(pkg *DataPackage) bool {
	return strings.EqualFold(pkg.PublishedIn, s.scope)
}

// nativeMetadata reads the sidecar document persisted next to the content.
type nativeMetadata struct {
	repository DataRepository
}

func (p nativeMetadata) Load(ctx context.Context, pkg *DataPackage) (SystemMetadata, error) {
	reader, err := p.repository.OpenFile(ctx, pkg.Key, SystemMetadataFile)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrPackageNotFound) {
			return SystemMetadata{}, notFound("system metadata not found", pkg.Key.String())
		}
		return SystemMetadata{}, serviceFailure("opening system metadata", pkg.Key.String(), err)
	}
	defer reader.Close()

	var meta SystemMetadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return SystemMetadata{}, invalidMetadata("unparsable system metadata document", pkg.Key.String())
	}
	// absent serial versions are presented as 1 without persisting the backfill
	if meta.SerialVersion == 0 {
		meta = meta.WithSerialVersion(1)
	}
	return meta, nil
}

// foreignMetadata synthesizes a document from package fields alone; nothing
// is read from or written to the package's files.
type foreignMetadata struct {
	node NodeRef
}

func (p foreignMetadata) Load(_ context.Context, pkg *DataPackage) (SystemMetadata, error) {
	return SystemMetadata{
		Identifier:        pkg.Key.String(),
		SerialVersion:     1,
		FormatID:          formatIDOf(pkg),
		Size:              pkg.Size,
		Checksum:          Checksum{Value: pkg.Checksum, Algorithm: ChecksumAlgorithm},
		Submitter:         pkg.CreatedBy,
		RightsHolder:      pkg.CreatedBy,
		OriginNode:        p.node,
		AuthoritativeNode: p.node,
		AccessRules: []AccessRule{{
			Subjects:    []string{PublicSubject},
			Permissions: []Permission{PermissionRead},
		}},
		DateUploaded: pkg.CreatedAt,
		DateModified: pkg.UpdatedAt,
	}, nil
}

// formatIDOf derives the format identifier from the first file's declared
// format, falling back to the generic octet-stream identifier.
func formatIDOf(pkg *DataPackage) string {
	if len(pkg.Files) > 0 && pkg.Files[0].Format != "" {
		return pkg.Files[0].Format
	}
	return DefaultFormatID
}

// metadataFile renders a metadata document as the sidecar file handed to
// the repository.
func metadataFile(meta SystemMetadata) (FileContent, error) {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return FileContent{}, invalidMetadata("unencodable system metadata document", meta.Identifier)
	}
	return FileContent{
		Name:   SystemMetadataFile,
		Format: "application/json",
		Reader: bytes.NewReader(encoded),
	}, nil
}
