package audit_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xviarchive/internal/audit"
	"xviarchive/internal/domain"
)

func entry(mrn string, outcome domain.Outcome, day int) domain.AuditEntry {
	return domain.AuditEntry{
		MRN:     mrn,
		Outcome: outcome,
		Date:    time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC),
	}
}

func TestAppendAndLoad(t *testing.T) {
	log := audit.New(filepath.Join(t.TempDir(), "actioned.yaml"))

	require.NoError(t, log.Append(entry("1234567", domain.OutcomeArchived, 1)))
	require.NoError(t, log.Append(entry("7654321", domain.OutcomeDeleted, 2)))
	require.NoError(t, log.Append(entry("1111111", domain.OutcomeArchived, 3)))

	archived, deleted := log.Load()
	require.Equal(t, []string{"1234567 on 2026-03-01", "1111111 on 2026-03-03"}, archived)
	require.Equal(t, []string{"7654321 on 2026-03-02"}, deleted)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	log := audit.New(filepath.Join(t.TempDir(), "actioned.yaml"))
	archived, deleted := log.Load()
	require.Empty(t, archived)
	require.Empty(t, deleted)
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actioned.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0o644))

	log := audit.New(path)
	archived, deleted := log.Load()
	require.Empty(t, archived)
	require.Empty(t, deleted)

	// An append after corruption starts a fresh, valid file.
	require.NoError(t, log.Append(entry("1234567", domain.OutcomeDeleted, 5)))
	_, deleted = log.Load()
	require.Equal(t, []string{"1234567 on 2026-03-05"}, deleted)
}

func TestAppendPreservesExternalEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actioned.yaml")
	seed := "ARCHIVED:\n    - 9999999 on 2020-01-01\nDELETED: []\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	log := audit.New(path)
	require.NoError(t, log.Append(entry("1234567", domain.OutcomeArchived, 1)))

	archived, _ := log.Load()
	require.Equal(t, []string{"9999999 on 2020-01-01", "1234567 on 2026-03-01"}, archived)
}

func TestUnknownOutcomeRejected(t *testing.T) {
	log := audit.New(filepath.Join(t.TempDir(), "actioned.yaml"))
	err := log.Append(domain.AuditEntry{MRN: "1234567", Outcome: "SHREDDED"})
	require.Error(t, err)
}

func TestNewDefaultsPath(t *testing.T) {
	require.Equal(t, audit.DefaultPath, audit.New("").Path)
}
