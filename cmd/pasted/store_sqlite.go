//go:build sqlite

package main

import (
	"ephemeral-paste/internal/storage"
	"ephemeral-paste/internal/storage/sqlitestore"
)

func openSQLite(path string) (storage.Store, error) {
	return sqlitestore.Open(path)
}
