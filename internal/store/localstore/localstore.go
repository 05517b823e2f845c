// Package localstore opens the embedded sqlite backend used for offline and
// unauthenticated sessions.
package localstore

import (
	"fmt"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suPer8Hu/personallm/internal/store"
	"github.com/suPer8Hu/personallm/internal/store/gormstore"
)

// LocalUserID scopes rows written without a real caller identity.
const LocalUserID = "local"

var _ store.Store = (*gormstore.Store)(nil)

// Open opens (or creates) the sqlite database at path and migrates the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*gormstore.Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	if err := gormstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("localstore: migrate: %w", err)
	}
	return gormstore.New(db), nil
}
