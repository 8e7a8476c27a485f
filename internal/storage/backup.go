package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupPrefix = "backup-"
	backupSuffix = ".db"
	backupLayout = "20060102T150405Z"

	// BackupsToKeep is how many snapshots survive a backup run.
	BackupsToKeep = 7
)

// Backup writes a consistent snapshot of the database into dir and prunes
// older snapshots so that only the newest BackupsToKeep remain.
func (d *DB) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create dir: %w", err)
	}
	path := filepath.Join(dir, backupPrefix+now.UTC().Format(backupLayout)+backupSuffix)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup %s: %w", path, ErrAlreadyExists)
	}

	ctx, cancel := context.WithTimeout(ctx, d.backupTimeout)
	defer cancel()
	if _, err := d.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", classify("backup", err)
	}

	if _, err := PruneBackups(dir, BackupsToKeep); err != nil {
		return path, err
	}
	return path, nil
}

// ListBackups returns backup file paths in dir, newest first.
func ListBackups(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var names []string
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// PruneBackups removes all but the keep newest backups and returns the
// removed paths.
func PruneBackups(dir string, keep int) ([]string, error) {
	paths, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) <= keep {
		return nil, nil
	}
	var removed []string
	for _, p := range paths[keep:] {
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("prune backup %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}
