package plan

import (
	"errors"
	"fmt"

	"github.com/steveyegge/wellplan/internal/plate"
)

// ErrAddressCollision is returned when two sample sets claim the same
// plate column without one naming the other in shares.
var ErrAddressCollision = errors.New("address collision")

// CollisionError names the sample sets that overlap and the first column
// they both claim.
type CollisionError struct {
	Set      string
	Existing string
	Address  plate.Address
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("address collision: sample set %q claims %s, already held by %q",
		e.Set, e.Address, e.Existing)
}

// Unwrap lets errors.Is match ErrAddressCollision.
func (e *CollisionError) Unwrap() error { return ErrAddressCollision }

type sampleSet struct {
	name   string
	shares string
	addrs  []plate.Address
}

// sharesWith reports whether either set explicitly names the other.
func (s sampleSet) sharesWith(other sampleSet) bool {
	return (s.shares != "" && s.shares == other.name) ||
		(other.shares != "" && other.shares == s.name)
}

// checkCollision returns a CollisionError for the first column of next
// that an existing, non-shared set already holds.
func checkCollision(sets []sampleSet, next sampleSet) error {
	for _, s := range sets {
		if next.sharesWith(s) {
			continue
		}
		held := make(map[plate.Address]bool, len(s.addrs))
		for _, a := range s.addrs {
			held[a] = true
		}
		for _, a := range next.addrs {
			if held[a] {
				return &CollisionError{Set: next.name, Existing: s.name, Address: a}
			}
		}
	}
	return nil
}
