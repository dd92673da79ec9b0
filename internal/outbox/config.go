package outbox

import (
	"path/filepath"

	"codeberg.org/mutker/thermowatch/internal/errors"
)

const (
	defaultDirPerm  = 0o750
	backupDirSuffix = "backups"
)

type Config struct {
	DBPath string
	// BackupDir receives a copy of the database before an incompatible schema
	// is replaced. Defaults to a backups directory next to DBPath.
	BackupDir string
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupDirSuffix)
}
