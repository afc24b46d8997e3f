package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xviarchive/internal/config"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	require.Equal(t, 14, s.GraceDays)
	require.Equal(t, 60, s.BackupRetentionDays)
	require.Equal(t, "SRI.exe", s.XVIProcess)
	require.Equal(t, ":8470", s.Server.Addr)
	require.False(t, s.OIS.Configured())
}

func TestFromYAML(t *testing.T) {
	raw := []byte(`
xvi_paths:
  - //nas01/xvi
  - //nas02/xvi
archive_path: //archive/xvi
ignore_mrns: ["1234567"]
grace_days: 30
ois:
  driver: sqlserver
  host: ois-db.local
  user: reader
  password: secret
  database: oncology
email_reports:
  name: North Wing
  host: smtp.local
  email_addresses: ["physics@clinic.example"]
`)
	s, err := config.FromYAML(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"//nas01/xvi", "//nas02/xvi"}, s.XVIPaths)
	require.Equal(t, 30, s.GraceDays)
	// Omitted knobs keep their defaults.
	require.Equal(t, 60, s.BackupRetentionDays)
	require.Equal(t, 1433, s.OIS.Port)
	require.True(t, s.OIS.Configured())
	require.True(t, s.Ignored("1234567"))
	require.False(t, s.Ignored("7654321"))
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"negative grace", "grace_days: -1"},
		{"negative retention", "backup_retention_days: -5"},
		{"unknown driver", "ois:\n  driver: oracle"},
		{"empty ignore entry", `ignore_mrns: ["1234567", ""]`},
		{"not yaml", "{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.raw))
			require.Error(t, err)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := config.Default()
	s.XVIPaths = []string{"//nas01/xvi"}
	s.ArchivePath = "//archive/xvi"
	s.IgnoreMRNs = []string{"1234567"}
	s.OIS.Host = "ois-db.local"
	require.NoError(t, s.Save(path))

	got, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestSQLiteConfigured(t *testing.T) {
	o := config.OIS{Driver: "sqlite"}
	require.False(t, o.Configured())
	o.Database = "ois.db"
	require.True(t, o.Configured())
}
