package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical user record. Version increases by one on every
// mutation and is carried on every sync message for it.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Roles        []string
	DeletedAt    *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Deleted() bool { return u.DeletedAt != nil }

// OutboxMessage is a sync message written in the same transaction as the
// mutation it describes. Payload is the encoded envelope.
type OutboxMessage struct {
	ID          uuid.UUID
	Destination string
	IdentityID  int64
	Version     int64
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   string
}

func (m OutboxMessage) Published() bool { return m.PublishedAt != nil }
