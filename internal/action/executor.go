// Package action executes the irreversible archive and delete operations
// against classified patient directories. A source directory is deleted if
// and only if the action is DELETE, or the action is ARCHIVE and the copy
// succeeded with matching source and destination sizes.
package action

import (
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"xviarchive/internal/audit"
	"xviarchive/internal/domain"
	"xviarchive/internal/fsx"
)

// Error kinds reported through per-item error messages.
const (
	KindCopyFailure   = "CopyFailure"
	KindSizeMismatch  = "SizeMismatch"
	KindDeleteFailure = "DeleteFailure"
)

// Reporter is the executor's side of the running task: cancellation plus
// the ordered progress stream.
type Reporter interface {
	Cancelled() bool
	Progress(text string)
	Errorf(kind, format string, args ...any)
}

// Executor performs one archive or delete batch.
type Executor struct {
	FS          fsx.FS
	Audit       *audit.Log
	ArchivePath string
	// XVIPaths are the scan roots whose live database files get backed up
	// before the batch runs.
	XVIPaths []string
	// RetentionDays is how long database backups are kept.
	RetentionDays int
	// Now is the clock used for audit dates and backup naming.
	Now func() time.Time
	// DryRun skips every mutation, for rehearsing a batch.
	DryRun bool
}

// Execute processes dirs in input order, applying the requested action to
// every record whose classified action matches it. Per-directory failures
// are reported through rep and skipped; processing continues. On
// cancellation the remaining directories are left untouched and the
// already-completed ones stay actioned. It returns the successfully
// actioned records and their audit entries.
func (e Executor) Execute(rep Reporter, dirs []domain.Directory, action domain.Action) ([]domain.Directory, []domain.AuditEntry) {
	// Re-check the action on each record: the selection may be stale or
	// the caller may have filtered against the wrong set.
	matched := domain.Filter(dirs, action)

	if len(matched) > 0 {
		e.backupDatabases()
	}

	var actioned []domain.Directory
	var entries []domain.AuditEntry
	for _, d := range matched {
		if rep.Cancelled() {
			slog.Info("action cancelled", "completed", len(actioned), "remaining", len(matched)-len(actioned))
			break
		}
		if !e.executeOne(rep, d, action) {
			continue
		}
		actioned = append(actioned, d)

		outcome, err := domain.OutcomeFor(action)
		if err != nil {
			slog.Error("audit outcome", "error", err)
			continue
		}
		entry := domain.AuditEntry{MRN: d.MRN, Outcome: outcome, Date: e.now()}
		entries = append(entries, entry)
		if e.DryRun {
			continue
		}
		if err := e.Audit.Append(entry); err != nil {
			slog.Error("audit append failed", "mrn", d.MRN, "error", err)
		}
	}
	return actioned, entries
}

// executeOne runs the copy-verify-delete sequence for a single directory
// and reports whether it was fully actioned.
func (e Executor) executeOne(rep Reporter, d domain.Directory, action domain.Action) bool {
	src := d.FullPath()

	if action == domain.ActionArchive {
		dst := filepath.Join(e.ArchivePath, d.DirName)
		if err := e.copyTree(src, dst); err != nil {
			slog.Error("copy failed", "src", src, "dst", dst, "error", err)
			rep.Errorf(KindCopyFailure, "%s: Error copying to %s - %v. The patient directory has not been deleted.", d.Label(), dst, err)
			return false
		}
		slog.Info("copied", "src", src, "dst", dst)

		if !e.DryRun {
			srcSize, srcErr := e.FS.TreeSize(src)
			dstSize, dstErr := e.FS.TreeSize(dst)
			if err := errors.Join(srcErr, dstErr); err != nil {
				slog.Error("size verification failed", "src", src, "dst", dst, "error", err)
				rep.Errorf(KindSizeMismatch, "%s: Error verifying copy to %s - %v. The patient directory has not been deleted.", d.Label(), dst, err)
				return false
			}
			if srcSize != dstSize {
				slog.Error("directory sizes do not match after copy", "src", src, "srcSize", srcSize, "dst", dst, "dstSize", dstSize)
				rep.Errorf(KindSizeMismatch, "%s: Error: Src and Dst directory sizes do not match after copy to %s. The patient directory has not been deleted.", d.Label(), dst)
				return false
			}
			slog.Info("sizes verified", "src", src, "bytes", srcSize)
		}
	}

	if err := e.deleteTree(src); err != nil {
		slog.Error("delete failed", "src", src, "error", err)
		if action == domain.ActionArchive {
			rep.Errorf(KindDeleteFailure, "%s: Error deleting %s - %v. The directory may be partially deleted; the copy to the archive location was successful.", d.Label(), src, err)
		} else {
			rep.Errorf(KindDeleteFailure, "%s: Error deleting %s - %v. The directory may be partially deleted.", d.Label(), src, err)
		}
		return false
	}
	slog.Info("deleted", "src", src)

	if action == domain.ActionArchive {
		rep.Progress(d.Label() + ": Successfully Archived to " + filepath.Join(e.ArchivePath, d.DirName))
	} else {
		rep.Progress(d.Label() + ": Successfully Deleted")
	}
	return true
}

func (e Executor) copyTree(src, dst string) error {
	if e.DryRun {
		return nil
	}
	return e.FS.CopyTree(src, dst)
}

func (e Executor) deleteTree(path string) error {
	if e.DryRun {
		return nil
	}
	return e.FS.DeleteTree(path)
}

func (e Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
