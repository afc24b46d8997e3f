// Package scan walks the configured XVI locations and builds the candidate
// directory set, applying the patient naming convention and the ignore list.
package scan

import (
	"log/slog"
	"path/filepath"
	"strings"

	"xviarchive/internal/domain"
	"xviarchive/internal/fsx"
)

// mrnLength is how long the second segment of a patient directory name
// must be to count as an MRN.
const mrnLength = 7

// Canceller reports whether the surrounding task was cancelled.
type Canceller interface{ Cancelled() bool }

type never struct{}

func (never) Cancelled() bool { return false }

// Never is a Canceller that never cancels, for synchronous callers.
var Never Canceller = never{}

// Scanner builds directory records from the configured root locations.
type Scanner struct {
	FS         fsx.FS
	Roots      []string
	IgnoreMRNs []string
}

// Scan lists the immediate subdirectories of every root and classifies
// each by naming convention. An unreachable root is skipped so one bad
// network mount never aborts the whole scan. Quick mode skips the size
// walk. A cancelled scan returns nil: no usable result, which is distinct
// from the non-nil empty set a completed scan over empty roots returns.
func (s Scanner) Scan(cancel Canceller, quick bool) []domain.Directory {
	dirs := []domain.Directory{}
	for _, root := range s.Roots {
		names, err := s.FS.ListSubdirs(root)
		if err != nil {
			slog.Warn("location unreachable, skipping", "root", root, "error", err)
			continue
		}
		for _, name := range names {
			if cancel.Cancelled() {
				return nil
			}
			dirs = append(dirs, s.record(root, name, quick))
		}
	}
	if cancel.Cancelled() {
		return nil
	}
	slog.Info("scan complete", "directories", len(dirs))
	return dirs
}

func (s Scanner) record(root, name string, quick bool) domain.Directory {
	d := domain.Directory{
		RootPath: root,
		DirName:  name,
		Action:   domain.ActionKeep,
	}
	if !quick {
		size, err := s.FS.TreeSize(filepath.Join(root, name))
		if err != nil {
			slog.Warn("could not compute directory size", "dir", d.FullPath(), "error", err)
		}
		d.SizeBytes = size
	}

	mrn, ok := ParseMRN(name)
	if !ok {
		d.Action = domain.ActionIgnore
		return d
	}
	d.MRN = mrn
	if s.ignored(mrn) {
		d.Action = domain.ActionIgnore
	}
	return d
}

func (s Scanner) ignored(mrn string) bool {
	for _, m := range s.IgnoreMRNs {
		if m == mrn {
			return true
		}
	}
	return false
}

// ParseMRN extracts the MRN from a directory name. The name must split on
// underscores into a case-insensitive "patient" prefix followed by a
// segment of exactly seven characters.
func ParseMRN(dirName string) (string, bool) {
	parts := strings.Split(dirName, "_")
	if len(parts) < 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "patient") {
		return "", false
	}
	if len(parts[1]) != mrnLength {
		return "", false
	}
	return parts[1], true
}
