package metadata

import (
	"encoding/hex"
	"sync"

	"github.com/cockroachdb/errors"
)

// Registry holds the current schema snapshot. Readers get the shared
// immutable pointer; Load swaps it atomically.
type Registry struct {
	mu          sync.RWMutex
	schema      *SchemaOverview
	fingerprint [32]byte
}

func NewRegistry() *Registry {
	empty := &SchemaOverview{}
	empty.Normalize()
	return &Registry{schema: empty, fingerprint: Fingerprint(empty)}
}

// Snapshot returns the current schema. The result must be treated as read-only.
func (r *Registry) Snapshot() *SchemaOverview {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema
}

// Fingerprint returns the hex digest of the current snapshot.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return hex.EncodeToString(r.fingerprint[:])
}

// Load validates s and makes it the current snapshot. It reports false
// without swapping when s is identical to what is already loaded.
func (r *Registry) Load(s *SchemaOverview) (bool, error) {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return false, errors.Wrap(err, "validate schema")
	}
	sum := Fingerprint(s)

	r.mu.Lock()
	defer r.mu.Unlock()
	if sum == r.fingerprint {
		return false, nil
	}
	r.schema = s
	r.fingerprint = sum
	return true, nil
}
