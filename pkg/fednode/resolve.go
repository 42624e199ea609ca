package fednode

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// resolve maps an external identifier to its data package. Identifiers that
// parse as canonical keys are looked up by key first; everything else, and
// any key miss, goes through the alternative-identifier index. The result is
// gated by the visibility rule; invisible packages are indistinguishable
// from absent ones. Every operation that names an object passes through
// here.
func (s *service) resolve(ctx context.Context, identifier string) (*DataPackage, error) {
	pkg, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return nil, notFound("identifier not found", identifier)
		}
		return nil, serviceFailure("resolving identifier", identifier, err)
	}
	if !s.visible(pkg) {
		return nil, notFound("identifier not found", identifier)
	}
	return pkg, nil
}

func (s *service) lookup(ctx context.Context, identifier string) (*DataPackage, error) {
	if key, err := uuid.Parse(identifier); err == nil {
		pkg, err := s.repository.Get(ctx, key)
		if err == nil {
			return pkg, nil
		}
		if !errors.Is(err, ErrPackageNotFound) {
			return nil, err
		}
		// a uuid-shaped pid can still be an alternative identifier
	}
	return s.repository.GetByAlternativeIdentifier(ctx, identifier)
}

// visible reports whether the package is published in or shared into this
// node's scope. Comparison is exact.
func (s *service) visible(pkg *DataPackage) bool {
	if pkg.PublishedIn == s.scope {
		return true
	}
	for _, scope := range pkg.SharedIn {
		if scope == s.scope {
			return true
		}
	}
	return false
}
