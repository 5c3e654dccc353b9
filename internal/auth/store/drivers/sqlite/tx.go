package sqlite

import (
	"database/sql"

	"github.com/aussiebroadwan/backoffice/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Identities() store.Identities   { return &identitiesRepo{db: t.tx} }
func (t *txStore) Credentials() store.Credentials { return &credentialsRepo{db: t.tx} }
func (t *txStore) SyncLog() store.SyncLog         { return &syncLogRepo{db: t.tx} }
