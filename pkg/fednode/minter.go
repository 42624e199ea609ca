package fednode

import (
	"context"
	"fmt"
	"sync"
)

// SequenceMinter issues DOIs under a fixed registrant prefix from a local
// counter. It backs development and test deployments; production nodes wire
// an IdentifierMinter talking to their registration agency instead.
type SequenceMinter struct {
	prefix string

	mu   sync.Mutex
	next uint64
}

// NewSequenceMinter creates a minter issuing DOIs under the given prefix,
// e.g. "10.5072".
func NewSequenceMinter(prefix string) *SequenceMinter {
	return &SequenceMinter{prefix: prefix}
}

// MintDOI returns the next DOI in sequence. A non-empty fragment is woven
// into the suffix.
func (m *SequenceMinter) MintDOI(_ context.Context, fragment string) (string, error) {
	m.mu.Lock()
	m.next++
	n := m.next
	m.mu.Unlock()

	if fragment != "" {
		return fmt.Sprintf("doi:%s/%s-%d", m.prefix, fragment, n), nil
	}
	return fmt.Sprintf("doi:%s/%d", m.prefix, n), nil
}
