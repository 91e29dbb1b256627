package application

import "github.com/google/uuid"

// NewID returns a UUIDv7 string. The leading bits hold a millisecond
// timestamp plus a per-process sequence, so a later id always sorts after
// an earlier one. Repositories break created_at ties on id.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
