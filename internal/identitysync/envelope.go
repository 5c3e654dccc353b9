// Package identitysync carries identity mutations from the Identity
// Directory to the Credential Service over Redis Streams.
//
// Each operation has its own destination stream. Delivery is at-least-once;
// consumers drop duplicates by IdempotencyKey and out-of-order deliveries by
// Version.
package identitysync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/backoffice/pkg/idx"
)

type Op string

const (
	OpCreate          Op = "create"
	OpUpdate          Op = "update"
	OpDelete          Op = "delete"
	OpRestore         Op = "restore"
	OpDeletePermanent Op = "delete-permanent"
)

// Ops lists every operation in the order consumers are started.
func Ops() []Op {
	return []Op{OpCreate, OpUpdate, OpDelete, OpRestore, OpDeletePermanent}
}

func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpRestore, OpDeletePermanent:
		return true
	}
	return false
}

// Destination is the operation-scoped destination name, e.g. identity.create.
func (o Op) Destination() string { return "identity." + string(o) }

// CarriesSnapshot reports whether messages for o include credentials.
func (o Op) CarriesSnapshot() bool { return o == OpCreate || o == OpUpdate }

var ErrInvalidEnvelope = errors.New("identitysync: invalid envelope")

// Snapshot is the credential view of an identity. Password is a bcrypt hash.
type Snapshot struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type Envelope struct {
	MessageID  idx.ID    `json:"message_id"`
	Op         Op        `json:"op"`
	IdentityID int64     `json:"identity_id"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
}

// NewEnvelope stamps a message id and time. snap is dropped for operations
// that carry only the id.
func NewEnvelope(op Op, identityID, version int64, snap *Snapshot) Envelope {
	if !op.CarriesSnapshot() {
		snap = nil
	}
	return Envelope{
		MessageID:  idx.New(),
		Op:         op,
		IdentityID: identityID,
		Version:    version,
		OccurredAt: time.Now().UTC(),
		Snapshot:   snap,
	}
}

// IdempotencyKey is op:identityID:version. A redelivery of the same
// mutation produces the same key even if its MessageID differs.
func (e Envelope) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d:%d", e.Op, e.IdentityID, e.Version)
}

func (e Envelope) Validate() error {
	if !e.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidEnvelope, e.Op)
	}
	if _, err := idx.Parse(e.MessageID.String()); err != nil {
		return fmt.Errorf("%w: message id: %w", ErrInvalidEnvelope, err)
	}
	if e.IdentityID <= 0 {
		return fmt.Errorf("%w: identity id must be positive", ErrInvalidEnvelope)
	}
	if e.Version < 0 {
		return fmt.Errorf("%w: negative version", ErrInvalidEnvelope)
	}
	if !e.Op.CarriesSnapshot() {
		return nil
	}

	if e.Snapshot == nil {
		return fmt.Errorf("%w: %s requires a snapshot", ErrInvalidEnvelope, e.Op)
	}
	if strings.TrimSpace(e.Snapshot.Username) == "" || e.Snapshot.Password == "" {
		return fmt.Errorf("%w: snapshot needs username and password", ErrInvalidEnvelope)
	}
	return nil
}
