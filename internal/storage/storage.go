// Package storage implements the session, record and asset cache stores on
// top of sqlx. Queries are written with "?" placeholders and rebound for the
// connected driver, so the same code serves PostgreSQL and SQLite.
package storage

import (
	"github.com/jmoiron/sqlx"
)

// Repositories groups the SQL stores sharing one connection pool.
type Repositories struct {
	Sessions *SessionStore
	Records  *RecordStore
	Assets   *AssetStore
}

// New builds every store on db.
func New(db *sqlx.DB) Repositories {
	return Repositories{
		Sessions: NewSessionStore(db),
		Records:  NewRecordStore(db),
		Assets:   NewAssetStore(db),
	}
}
