package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"xviarchive/internal/fsx"
)

// DefaultPath is where the tool looks for its settings by default.
const DefaultPath = "settings.yaml"

// Settings models settings.yaml.
type Settings struct {
	// XVIPaths are the root locations scanned for patient directories.
	XVIPaths []string `yaml:"xvi_paths"`
	// ArchivePath is the destination root for archived directories and
	// database backups.
	ArchivePath string `yaml:"archive_path"`
	// LogPath, when set, receives a copy of each run's log file.
	LogPath string `yaml:"log_path"`
	// IgnoreMRNs are patient identifiers excluded from classification.
	IgnoreMRNs []string `yaml:"ignore_mrns"`
	// GraceDays is how recently a last fraction may have been delivered
	// before the patient becomes eligible for archive or delete.
	GraceDays int `yaml:"grace_days"`
	// BackupRetentionDays is how long database backups are kept.
	BackupRetentionDays int `yaml:"backup_retention_days"`
	// XVIProcess is the process name checked before any action runs.
	XVIProcess string `yaml:"xvi_process"`

	OIS    OIS          `yaml:"ois"`
	Email  EmailReports `yaml:"email_reports"`
	Server Server       `yaml:"server"`
}

// OIS is the connection to the oncology information system.
type OIS struct {
	Driver   string `yaml:"driver"` // sqlserver or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// Queries override the built-in statements with site-specific SQL.
	// Each must select the provider row columns and contain one IN (?)
	// placeholder for the MRN list.
	Queries OISQueries `yaml:"queries"`
}

type OISQueries struct {
	FinishedTreatment string `yaml:"finished_treatment"`
	ClinicalTrials    string `yaml:"clinical_trials"`
	Has4D             string `yaml:"has_4d"`
}

// Configured reports whether a connection target has been set up at all.
func (o OIS) Configured() bool {
	if o.Driver == "sqlite" {
		return o.Database != ""
	}
	return o.Host != ""
}

// EmailReports configures the automated job's report delivery.
type EmailReports struct {
	Name      string   `yaml:"name"`
	From      string   `yaml:"from"`
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	User      string   `yaml:"user"`
	Password  string   `yaml:"password"`
	Addresses []string `yaml:"email_addresses"`
}

// Server configures the HTTP API.
type Server struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the settings used when no file exists yet.
func Default() *Settings {
	return &Settings{
		GraceDays:           14,
		BackupRetentionDays: 60,
		XVIProcess:          "SRI.exe",
		OIS:                 OIS{Driver: "sqlserver", Port: 1433},
		Email:               EmailReports{Port: 25},
		Server:              Server{Addr: ":8470"},
	}
}

// Load reads settings from path. A missing file yields the defaults, same
// as an unconfigured install; any other read or parse failure is an error.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates settings from raw YAML bytes. Zero values
// for the numeric knobs fall back to the defaults.
func FromYAML(data []byte) (*Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("invalid settings yaml: %w", err)
	}
	if s.GraceDays == 0 {
		s.GraceDays = 14
	}
	if s.BackupRetentionDays == 0 {
		s.BackupRetentionDays = 60
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate ensures the settings are internally consistent.
func (s *Settings) Validate() error {
	if s.GraceDays < 0 {
		return fmt.Errorf("grace_days must not be negative")
	}
	if s.BackupRetentionDays < 0 {
		return fmt.Errorf("backup_retention_days must not be negative")
	}
	switch s.OIS.Driver {
	case "", "sqlserver", "sqlite":
	default:
		return fmt.Errorf("ois.driver must be sqlserver or sqlite, got %q", s.OIS.Driver)
	}
	for _, m := range s.IgnoreMRNs {
		if m == "" {
			return fmt.Errorf("ignore_mrns contains an empty entry")
		}
	}
	return nil
}

// Save writes settings back to path atomically.
func (s *Settings) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, data)
}

// Ignored reports whether an MRN is on the ignore list.
func (s *Settings) Ignored(mrn string) bool {
	for _, m := range s.IgnoreMRNs {
		if m == mrn {
			return true
		}
	}
	return false
}
