package idgen

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

// HashGenerator derives deterministic tag ids from call-site keys.
// It hashes the key (SHA256), takes the first 4 bytes of the digest as a
// big-endian integer and folds it into the five-letter sequence space.
// Collisions are possible; the caller checks the registry for uniqueness.
type HashGenerator struct {
	salt string
}

// NewHashGenerator returns a HashGenerator. A non-empty salt gives a
// second, independent mapping to fall back on after a collision.
func NewHashGenerator(salt string) *HashGenerator {
	return &HashGenerator{salt: salt}
}

// GenerateFor hashes key into a five-letter tag id.
// Deterministic: same key and salt => same id.
func (g *HashGenerator) GenerateFor(key string) (tagcodec.ID, error) {
	if key == "" {
		return 0, errors.New("hash generator: empty key")
	}
	hash := sha256.Sum256([]byte(g.salt + key))
	v := binary.BigEndian.Uint32(hash[:4])

	span := LastSequence - FirstSequence + 1
	return FiveLetter(FirstSequence + v%span)
}
