package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Action is what the classifier decided should happen to a directory.
type Action string

const (
	ActionKeep    Action = "KEEP"
	ActionArchive Action = "ARCHIVE"
	ActionDelete  Action = "DELETE"
	ActionIgnore  Action = "IGNORE"
)

// ParseAction validates a free-text action value.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionKeep, ActionArchive, ActionDelete, ActionIgnore:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Directory is one scanned patient directory.
type Directory struct {
	RootPath          string    `json:"root_path" yaml:"root_path"`
	DirName           string    `json:"dir_name" yaml:"dir_name"`
	MRN               string    `json:"mrn,omitempty" yaml:"mrn,omitempty"`
	Name              string    `json:"name,omitempty" yaml:"name,omitempty"`
	Action            Action    `json:"action" yaml:"action"`
	FinishedTreatment bool      `json:"finished_treatment" yaml:"finished_treatment"`
	ClinicalTrial     bool      `json:"clinical_trial" yaml:"clinical_trial"`
	Has4D             bool      `json:"has_4d" yaml:"has_4d"`
	LastFractionDate  time.Time `json:"last_fraction_date,omitempty" yaml:"last_fraction_date,omitempty"`
	SizeBytes         int64     `json:"dir_size_bytes" yaml:"dir_size_bytes"`
}

// FullPath is the directory's location on disk.
func (d Directory) FullPath() string {
	return filepath.Join(d.RootPath, d.DirName)
}

// Label identifies a directory in progress messages: "<MRN> - <name>".
func (d Directory) Label() string {
	return d.MRN + " - " + d.Name
}

// Filter returns the directories whose action matches.
func Filter(dirs []Directory, action Action) []Directory {
	out := make([]Directory, 0, len(dirs))
	for _, d := range dirs {
		if d.Action == action {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many directories carry the given action.
func Count(dirs []Directory, action Action) int {
	n := 0
	for _, d := range dirs {
		if d.Action == action {
			n++
		}
	}
	return n
}

// Outcome records what an executed action did to a directory.
type Outcome string

const (
	OutcomeArchived Outcome = "ARCHIVED"
	OutcomeDeleted  Outcome = "DELETED"
)

// OutcomeFor maps an executed action to its audit outcome.
func OutcomeFor(action Action) (Outcome, error) {
	switch action {
	case ActionArchive:
		return OutcomeArchived, nil
	case ActionDelete:
		return OutcomeDeleted, nil
	}
	return "", fmt.Errorf("action %q has no audit outcome", action)
}

// AuditEntry is one completed archive or delete, permanent once written.
type AuditEntry struct {
	MRN     string
	Outcome Outcome
	Date    time.Time
}

// String renders the persisted token form, "<MRN> on <YYYY-MM-DD>".
func (e AuditEntry) String() string {
	return e.MRN + " on " + e.Date.Format("2006-01-02")
}

// TreatmentField is one finished-treatment row from the OIS.
type TreatmentField struct {
	MRN                 string    `db:"mrn"`
	LastName            string    `db:"last_name"`
	FirstName           string    `db:"first_name"`
	MiddleName          string    `db:"middle_name"`
	PrescribedFractions int       `db:"presc_fractions"`
	DeliveredFractions  int       `db:"deliv_fractions"`
	LastFractionDate    time.Time `db:"last_fraction_date"`
}

// PatientName joins the name parts the way the OIS stores them.
func (f TreatmentField) PatientName() string {
	return f.LastName + " " + f.FirstName + " " + f.MiddleName
}

// TrialMembership is one clinical-trial row from the OIS.
type TrialMembership struct {
	MRN        string `db:"mrn"`
	LastName   string `db:"last_name"`
	FirstName  string `db:"first_name"`
	MiddleName string `db:"middle_name"`
}

func (t TrialMembership) PatientName() string {
	return t.LastName + " " + t.FirstName + " " + t.MiddleName
}

// ConeBeam4D is one 4D cone-beam imaging row from the OIS.
type ConeBeam4D struct {
	MRN        string `db:"mrn"`
	LastName   string `db:"last_name"`
	FirstName  string `db:"first_name"`
	MiddleName string `db:"middle_name"`
}

func (c ConeBeam4D) PatientName() string {
	return c.LastName + " " + c.FirstName + " " + c.MiddleName
}
