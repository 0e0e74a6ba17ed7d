package ledger

import (
	"github.com/google/uuid"
)

// SiteID identifies a tracked storage site. Site ids are handed out by the
// store's site registry; entries reference sites only through this type.
type SiteID string

// EntryID identifies a ledger entry.
type EntryID string

// IDGenerator produces unique identifiers for new sites and entries.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Ids minted on different devices never collide, which is what lets an
// offline device create entries without asking anyone for a sequence number.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
