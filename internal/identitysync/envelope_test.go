package identitysync_test

import (
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/stretchr/testify/require"
)

func snapshot() *identitysync.Snapshot {
	return &identitysync.Snapshot{
		Username: "alice",
		Password: "$2a$10$abcdefghijklmnopqrstuuJb0R8q8Y6N9k1uCq1bT8kTqQGm3Zk4W",
		Roles:    []string{"ADMIN"},
	}
}

func TestEnvelopeValidate(t *testing.T) {
	cases := []struct {
		name string
		env  identitysync.Envelope
		ok   bool
	}{
		{"create with snapshot", identitysync.NewEnvelope(identitysync.OpCreate, 1, 1, snapshot()), true},
		{"create without snapshot", identitysync.NewEnvelope(identitysync.OpCreate, 1, 1, nil), false},
		{"update without username", identitysync.NewEnvelope(identitysync.OpUpdate, 1, 2, &identitysync.Snapshot{Password: "x"}), false},
		{"delete id only", identitysync.NewEnvelope(identitysync.OpDelete, 1, 3, nil), true},
		{"restore id only", identitysync.NewEnvelope(identitysync.OpRestore, 1, 4, nil), true},
		{"hard delete id only", identitysync.NewEnvelope(identitysync.OpDeletePermanent, 1, 5, nil), true},
		{"zero id", identitysync.NewEnvelope(identitysync.OpDelete, 0, 1, nil), false},
		{"unknown op", identitysync.Envelope{Op: "rename", IdentityID: 1}, false},
		{"missing message id", identitysync.Envelope{Op: identitysync.OpDelete, IdentityID: 1, Version: 1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, identitysync.ErrInvalidEnvelope)
			}
		})
	}
}

func TestNewEnvelopeDropsSnapshotForIDOnlyOps(t *testing.T) {
	env := identitysync.NewEnvelope(identitysync.OpDelete, 9, 2, snapshot())
	require.Nil(t, env.Snapshot)
	require.False(t, env.MessageID.IsZero())

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "snapshot")
}

func TestIdempotencyKey(t *testing.T) {
	a := identitysync.NewEnvelope(identitysync.OpCreate, 7, 3, snapshot())
	b := identitysync.NewEnvelope(identitysync.OpCreate, 7, 3, snapshot())

	require.NotEqual(t, a.MessageID, b.MessageID)
	require.Equal(t, "create:7:3", a.IdempotencyKey())
	require.Equal(t, a.IdempotencyKey(), b.IdempotencyKey())
}

func TestStreamName(t *testing.T) {
	require.Equal(t, "sync:identity.delete-permanent", identitysync.StreamName("", identitysync.OpDeletePermanent))
	require.Equal(t, "bo:identity.create", identitysync.StreamName("bo", identitysync.OpCreate))
	require.Len(t, identitysync.Ops(), 5)
}
