package repository

import (
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/opensource-finance/fathom/internal/domain"
)

// sqlitePragmas apply to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// sqliteDSN builds a modernc file: DSN, creating the parent directory of the
// database file if needed.
func sqliteDSN(cfg domain.RepositoryConfig) (string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./fathom.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path
	for i, p := range sqlitePragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}
	return dsn, nil
}
