package report_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xviarchive/internal/domain"
	"xviarchive/internal/report"
)

func sampleDirs() []domain.Directory {
	return []domain.Directory{
		{
			RootPath: "/xvi", DirName: "patient_1234567", MRN: "1234567",
			Name: "Smith Jane A", Action: domain.ActionDelete,
			FinishedTreatment: true,
			LastFractionDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
			SizeBytes:         2048,
		},
		{
			RootPath: "/xvi", DirName: "patient_7654321", MRN: "7654321",
			Name: "Jones Sam", Action: domain.ActionArchive,
			FinishedTreatment: true, ClinicalTrial: true,
		},
		{RootPath: "/xvi", DirName: "calibration", Action: domain.ActionIgnore},
		{RootPath: "/xvi", DirName: "patient_1111111", MRN: "1111111", Action: domain.ActionKeep},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, sampleDirs()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	// Header plus every non-IGNORE record.
	require.Len(t, rows, 4)
	require.Equal(t, "mrn", rows[0][2])
	require.Equal(t, []string{
		"/xvi", "patient_1234567", "1234567", "Smith Jane A", "DELETE",
		"true", "false", "false", "2026-01-15", "2048",
	}, rows[1])
	require.Equal(t, "ARCHIVE", rows[2][4])
	// Zero fraction dates render as an empty column.
	require.Empty(t, rows[3][8])
}

func TestReportBody(t *testing.T) {
	dirs := sampleDirs()
	r := report.Report{
		Directories: dirs,
		Archived:    []domain.Directory{dirs[1]},
		JobStart:    time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		JobFinish:   time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC),
	}
	body := r.Body()

	require.Contains(t, body, "ran from 2026-03-01 02:00:00 to 2026-03-01 02:30:00")
	require.Contains(t, body, "No errors occurred")
	require.Contains(t, body, "The following patients may be deleted from XVI:")
	require.Contains(t, body, "1234567\tSmith Jane A")
	require.Contains(t, body, "The following patients were archived")
	require.Contains(t, body, "7654321\tJones Sam")
	require.Contains(t, body, "will not appear on subsequent email reports")
}

func TestReportBodyWithErrorsAndNothingActioned(t *testing.T) {
	r := report.Report{
		Errors:    []string{"archive path unreachable"},
		JobStart:  time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		JobFinish: time.Date(2026, 3, 1, 2, 1, 0, 0, time.UTC),
	}
	body := r.Body()

	require.Contains(t, body, "The following errors occurred")
	require.Contains(t, body, " - archive path unreachable")
	require.Contains(t, body, "No patients were detected for deletion")
	require.Contains(t, body, "No patients were archived")
}
