package password

import (
	"errors"
	"sync"
)

// ErrEmptySecret is returned by Hash for an empty input.
var ErrEmptySecret = errors.New("empty secret")

// Hasher hashes raw secrets (passwords and token secrets) for storage and
// verifies a raw secret against a stored hash.
//
// Hash is salted and therefore non-deterministic. Verify reports (false, nil)
// on mismatch and an error only when the stored hash cannot be interpreted.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) (bool, error)
}

const dummySecret = "finauth-dummy-secret-for-timing"

// Dummy lazily computes one hash of a fixed secret with h's parameters.
// Comparing against it when no stored hash exists keeps the work done on a
// lookup miss equal to a real comparison.
type Dummy struct {
	hasher Hasher
	once   sync.Once
	hash   string
	err    error
}

// NewDummy returns a [Dummy] bound to h.
func NewDummy(h Hasher) *Dummy {
	return &Dummy{hasher: h}
}

// Burn runs a full verification against the dummy hash and discards the result.
func (d *Dummy) Burn(secret string) {
	if d == nil || d.hasher == nil {
		return
	}
	d.once.Do(func() {
		d.hash, d.err = d.hasher.Hash(dummySecret)
	})
	if d.err != nil {
		return
	}
	_, _ = d.hasher.Verify(secret, d.hash)
}
