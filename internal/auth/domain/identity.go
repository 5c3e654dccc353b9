package domain

import "time"

// Identity is the local mirror of a directory user. It is only ever written
// by sync messages.
type Identity struct {
	ID           int64 // directory id
	Username     string
	PasswordHash string // bcrypt
	Roles        []string
	DeletedAt    *time.Time
	UpdatedAt    time.Time
}

// Deleted reports whether the identity is soft-deleted.
func (i Identity) Deleted() bool { return i.DeletedAt != nil }
