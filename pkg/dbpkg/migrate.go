package dbpkg

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// and postgresql:// URLs
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file:// migration sources
)

// Migrate applies every pending up migration found in dir to the database at source.
//
// It opens its own connection and closes it when done, so callers keep their pools.
func Migrate(source, dir string) error {
	m, err := migrate.New("file://"+dir, source)
	if err != nil {
		return fmt.Errorf("init migrations from %q: %w", dir, err)
	}

	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations from %q: %w", dir, err)
	}

	return nil
}
