package database

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// Store bundles the repositories behind one value. It satisfies the store
// interfaces of the conversation and scheduler packages.
type Store struct {
	*UserRepository
	*EntryRepository
	*LogRepository
}

// NewStore creates a store that stamps records with the current time
func NewStore(db *sqlx.DB) *Store {
	return NewStoreWithClock(db, time.Now)
}

// NewStoreWithClock creates a store using now for created/active timestamps
func NewStoreWithClock(db *sqlx.DB, now func() time.Time) *Store {
	return &Store{
		UserRepository:  NewUserRepository(db, now),
		EntryRepository: NewEntryRepository(db, now),
		LogRepository:   NewLogRepository(db, now),
	}
}
