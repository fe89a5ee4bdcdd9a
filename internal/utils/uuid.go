package utils

import "github.com/google/uuid"

// NewID returns a time-ordered (UUID v7) identifier: every primary key in
// Storage uses this instead of v4 so that ordering by ID doubles as
// ordering by creation time. Generation only fails if the system's CSPRNG
// is unavailable, a condition nothing downstream could recover from.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("utils: failed to generate UUIDv7: " + err.Error())
	}
	return id.String()
}

// IsValidUUID reports whether s parses as a UUID of any version.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
