//go:build !sqlite

package main

import (
	"errors"

	"ephemeral-paste/internal/storage"
)

func openSQLite(string) (storage.Store, error) {
	return nil, errors.New("sqlite support not compiled in; rebuild with -tags sqlite")
}
