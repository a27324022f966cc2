package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const snapshotLayout = "20060102-150405"

var ErrNotSQLite = errors.New("not a sqlite database")

var sqliteHeader = []byte("SQLite format 3\x00")

// Snapshotter writes a consistent copy of the live database.
type Snapshotter interface {
	BackupTo(ctx context.Context, path string) error
}

// SnapshotPath names a snapshot taken at now.
func SnapshotPath(dir, prefix string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.db", prefix, now.UTC().Format(snapshotLayout)))
}

// Snapshot copies the database into dir and returns the file written.
func Snapshot(ctx context.Context, db Snapshotter, dir string, now time.Time) (string, error) {
	path := SnapshotPath(dir, "birthdays", now)
	if err := db.BackupTo(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// Restore replaces the database file at dbPath with from. The current file,
// if any, is first copied into dir as a restore point together with its
// WAL, and the restore point's path is returned. The database must not be open while restoring.
func Restore(dbPath, from, dir string, now time.Time) (string, error) {
	if err := checkSQLite(from); err != nil {
		return "", err
	}

	var restorePoint string
	if _, err := os.Stat(dbPath); err == nil {
		restorePoint = SnapshotPath(dir, "restore-point", now)
		if err := copyFile(dbPath, restorePoint); err != nil {
			return "", fmt.Errorf("create restore point: %w", err)
		}
		// committed pages not yet checkpointed live only in the WAL
		if err := copyFile(dbPath+"-wal", restorePoint+"-wal"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("create restore point wal: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", dbPath, err)
	}

	// stale WAL files would be replayed over the restored data
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return restorePoint, fmt.Errorf("remove %s: %w", dbPath+suffix, err)
		}
	}

	if err := copyFile(from, dbPath); err != nil {
		return restorePoint, fmt.Errorf("restore %s: %w", from, err)
	}
	return restorePoint, nil
}

func checkSQLite(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, sqliteHeader) {
		return fmt.Errorf("%s: %w", path, ErrNotSQLite)
	}
	return nil
}

// copyFile writes src to a temp file next to dst and renames it into place.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
