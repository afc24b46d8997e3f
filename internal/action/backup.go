package action

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// backupExtensions are the live database files copied aside before a batch.
var backupExtensions = []string{".mdf", ".ldf"}

// backupDatabases copies any live database files from each scan root into a
// dated subdirectory under the archive destination, then prunes backups
// older than the retention window. Backups are best-effort: failures are
// logged and never block the main action.
func (e Executor) backupDatabases() {
	if e.DryRun {
		return
	}
	backupRoot := filepath.Join(e.ArchivePath, "backup")
	dest := filepath.Join(backupRoot, e.now().Format("2006-01-02_15_04_05"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		slog.Error("could not create backup directory", "dir", dest, "error", err)
		return
	}

	for _, root := range e.XVIPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			slog.Warn("could not list location for backup", "root", root, "error", err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isBackupFile(entry.Name()) {
				continue
			}
			src := filepath.Join(root, entry.Name())
			dst := filepath.Join(dest, entry.Name())
			if err := e.FS.CopyFile(src, dst); err != nil {
				slog.Error("database backup failed", "src", src, "error", err)
				continue
			}
			slog.Info("backed up", "src", src, "dst", dst)
		}
	}

	e.pruneBackups(backupRoot)
}

// pruneBackups deletes dated backup directories past the retention window,
// judged by modification time.
func (e Executor) pruneBackups(backupRoot string) {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		slog.Warn("could not list backups for pruning", "dir", backupRoot, "error", err)
		return
	}
	retention := e.RetentionDays
	if retention <= 0 {
		retention = 60
	}
	cutoff := e.now().AddDate(0, 0, -retention)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			old := filepath.Join(backupRoot, entry.Name())
			if err := e.FS.DeleteTree(old); err != nil {
				slog.Warn("could not prune old backup", "dir", old, "error", err)
				continue
			}
			slog.Info("pruned old backup", "dir", old)
		}
	}
}

func isBackupFile(name string) bool {
	for _, ext := range backupExtensions {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			return true
		}
	}
	return false
}
