// Package report renders the classified directory set for operators: CSV
// export and the emailed summary of automated runs.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"xviarchive/internal/domain"
)

var csvHeader = []string{
	"root_path", "dir_name", "mrn", "name", "action",
	"finished_treatment", "clinical_trial", "has_4d",
	"last_fraction_date", "dir_size_bytes",
}

// WriteCSV exports every non-IGNORE record with all its fields.
func WriteCSV(w io.Writer, dirs []domain.Directory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range dirs {
		if d.Action == domain.ActionIgnore {
			continue
		}
		lastFraction := ""
		if !d.LastFractionDate.IsZero() {
			lastFraction = d.LastFractionDate.Format("2006-01-02")
		}
		row := []string{
			d.RootPath, d.DirName, d.MRN, d.Name, string(d.Action),
			strconv.FormatBool(d.FinishedTreatment),
			strconv.FormatBool(d.ClinicalTrial),
			strconv.FormatBool(d.Has4D),
			lastFraction,
			strconv.FormatInt(d.SizeBytes, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
