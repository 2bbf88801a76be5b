package metadata

import (
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes the canonical JSON form of a schema. Map keys are
// emitted sorted and relations are ordered by Normalize, so equal schemas
// hash equally.
func Fingerprint(s *SchemaOverview) [32]byte {
	data, err := json.Marshal(s)
	if err != nil {
		// Schema values are plain data; Marshal cannot fail on them.
		panic(err)
	}
	return blake2b.Sum256(data)
}
