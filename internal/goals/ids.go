package goals

import "github.com/google/uuid"

// IDGenerator generates activation ids.
// Implemented by UUIDv7Generator (production) and testutil.SequenceIDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 activation ids, so ids in
// a journal sort in creation order.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
