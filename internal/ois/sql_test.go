package ois_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"xviarchive/internal/config"
	"xviarchive/internal/ois"
)

const schema = `
CREATE TABLE treatment_fields (
	mrn TEXT NOT NULL,
	last_name TEXT NOT NULL,
	first_name TEXT NOT NULL,
	middle_name TEXT NOT NULL DEFAULT '',
	presc_fractions INTEGER NOT NULL,
	deliv_fractions INTEGER NOT NULL,
	last_fraction_date TIMESTAMP NOT NULL
);
CREATE TABLE clinical_trials (
	mrn TEXT NOT NULL,
	last_name TEXT NOT NULL,
	first_name TEXT NOT NULL,
	middle_name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE cone_beam_4d (
	mrn TEXT NOT NULL,
	last_name TEXT NOT NULL,
	first_name TEXT NOT NULL,
	middle_name TEXT NOT NULL DEFAULT ''
);
`

func newTestProvider(t *testing.T) (*ois.SQL, *sqlx.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ois.db")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)

	p := ois.NewSQL(config.OIS{Driver: "sqlite", Database: path})
	t.Cleanup(func() { p.Close() })
	return p, db
}

func TestFinishedTreatmentRows(t *testing.T) {
	p, db := newTestProvider(t)
	last := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := db.Exec(
		`INSERT INTO treatment_fields VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"1234567", "Smith", "Jane", "A", 20, 20, last)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO treatment_fields VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"9999999", "Other", "Pat", "", 10, 10, last)
	require.NoError(t, err)

	rows, err := p.FinishedTreatment(context.Background(), []string{"1234567"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1234567", rows[0].MRN)
	require.Equal(t, "Smith Jane A", rows[0].PatientName())
	require.Equal(t, 20, rows[0].PrescribedFractions)
	require.Equal(t, 20, rows[0].DeliveredFractions)
	require.True(t, rows[0].LastFractionDate.Equal(last))
}

func TestTrialAnd4DRows(t *testing.T) {
	p, db := newTestProvider(t)
	_, err := db.Exec(`INSERT INTO clinical_trials VALUES ('1234567', 'Smith', 'Jane', 'A')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO cone_beam_4d VALUES ('7654321', 'Jones', 'Sam', '')`)
	require.NoError(t, err)

	trials, err := p.ClinicalTrials(context.Background(), []string{"1234567", "7654321"})
	require.NoError(t, err)
	require.Len(t, trials, 1)
	require.Equal(t, "1234567", trials[0].MRN)

	beams, err := p.Has4D(context.Background(), []string{"1234567", "7654321"})
	require.NoError(t, err)
	require.Len(t, beams, 1)
	require.Equal(t, "7654321", beams[0].MRN)
}

func TestOverrideQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ois.db")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`
CREATE TABLE site_trials (
	patient_id TEXT NOT NULL,
	surname TEXT NOT NULL,
	given TEXT NOT NULL
);
INSERT INTO site_trials VALUES ('1234567', 'Smith', 'Jane');
`)
	require.NoError(t, err)

	cfg := config.OIS{Driver: "sqlite", Database: path}
	cfg.Queries.ClinicalTrials = `SELECT patient_id AS mrn, surname AS last_name, given AS first_name, '' AS middle_name FROM site_trials WHERE patient_id IN (?)`
	p := ois.NewSQL(cfg)
	defer p.Close()

	trials, err := p.ClinicalTrials(context.Background(), []string{"1234567", "0000000"})
	require.NoError(t, err)
	require.Len(t, trials, 1)
	require.Equal(t, "Smith Jane ", trials[0].PatientName())
}

func TestEmptyMRNListSkipsQuery(t *testing.T) {
	// No connection is ever made, so an unconfigured provider works too.
	p := ois.NewSQL(config.OIS{})
	rows, err := p.FinishedTreatment(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestUnconfiguredProviderIsUnavailable(t *testing.T) {
	p := ois.NewSQL(config.OIS{})
	_, err := p.FinishedTreatment(context.Background(), []string{"1234567"})
	require.ErrorIs(t, err, ois.ErrUnavailable)
}
