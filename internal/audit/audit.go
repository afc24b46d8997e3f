// Package audit keeps the permanent record of every directory archived or
// deleted. Entries are append-only: once a directory has left its original
// location, the log is the only trace of where the data went.
package audit

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"xviarchive/internal/domain"
	"xviarchive/internal/fsx"
)

// DefaultPath is the audit file written next to the tool by default.
const DefaultPath = "actioned.yaml"

// file is the persisted shape: two ordered lists of "<MRN> on <date>".
type file struct {
	Archived []string `yaml:"ARCHIVED"`
	Deleted  []string `yaml:"DELETED"`
}

// Log persists audit entries at Path using read-modify-write so prior
// entries survive every append.
type Log struct {
	Path string
}

// New returns a Log at path, or at DefaultPath when path is empty.
func New(path string) *Log {
	if path == "" {
		path = DefaultPath
	}
	return &Log{Path: path}
}

// Load returns the persisted token lists. A missing or unreadable file is
// treated as an empty log, never a fatal error; corruption is logged since
// the following append rewrites the file.
func (l *Log) Load() (archived, deleted []string) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, nil
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("audit log unreadable, starting a fresh one", "path", l.Path, "error", err)
		return nil, nil
	}
	return f.Archived, f.Deleted
}

// Append persists one completed action, preserving all existing entries.
func (l *Log) Append(entry domain.AuditEntry) error {
	archived, deleted := l.Load()
	switch entry.Outcome {
	case domain.OutcomeArchived:
		archived = append(archived, entry.String())
	case domain.OutcomeDeleted:
		deleted = append(deleted, entry.String())
	default:
		return fmt.Errorf("unknown audit outcome %q", entry.Outcome)
	}
	data, err := yaml.Marshal(file{Archived: archived, Deleted: deleted})
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(l.Path, data)
}
