// Package classify merges scan results with OIS lookups and decides the
// action for each patient directory.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"xviarchive/internal/domain"
	"xviarchive/internal/ois"
	"xviarchive/internal/scan"
)

// Classifier applies the patient-status decision algorithm.
type Classifier struct {
	Provider ois.Provider
	// Now is the clock used for the grace window; defaults to time.Now.
	Now func() time.Time
	// GraceDays is how recently the last fraction may have been delivered
	// before the patient stops counting as finished.
	GraceDays int
}

// Classify sets the action on every non-IGNORE record in place. When the
// provider cannot be queried it returns an error wrapping ois.ErrUnavailable
// and leaves every record at its scan-time action.
//
// The display name precedence is treatment field, then clinical trial, then
// 4D: later lookups overwrite earlier ones. This order is load-bearing and
// must not change.
func (c Classifier) Classify(ctx context.Context, cancel scan.Canceller, dirs []domain.Directory) error {
	mrns := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d.Action != domain.ActionIgnore && d.MRN != "" {
			mrns = append(mrns, d.MRN)
		}
	}
	if len(mrns) == 0 {
		return nil
	}

	fields, err := c.Provider.FinishedTreatment(ctx, mrns)
	if err != nil {
		return fmt.Errorf("fetch finished treatment: %w", err)
	}
	trials, err := c.Provider.ClinicalTrials(ctx, mrns)
	if err != nil {
		return fmt.Errorf("fetch clinical trials: %w", err)
	}
	coneBeams, err := c.Provider.Has4D(ctx, mrns)
	if err != nil {
		return fmt.Errorf("fetch 4d cone beams: %w", err)
	}

	fieldsByMRN := make(map[string][]domain.TreatmentField)
	for _, f := range fields {
		fieldsByMRN[f.MRN] = append(fieldsByMRN[f.MRN], f)
	}
	trialsByMRN := make(map[string][]domain.TrialMembership)
	for _, t := range trials {
		trialsByMRN[t.MRN] = append(trialsByMRN[t.MRN], t)
	}
	coneBeamsByMRN := make(map[string][]domain.ConeBeam4D)
	for _, cb := range coneBeams {
		coneBeamsByMRN[cb.MRN] = append(coneBeamsByMRN[cb.MRN], cb)
	}

	for i := range dirs {
		if cancel.Cancelled() {
			return nil
		}
		if dirs[i].Action == domain.ActionIgnore {
			continue
		}
		c.classifyOne(&dirs[i], fieldsByMRN[dirs[i].MRN], trialsByMRN[dirs[i].MRN], coneBeamsByMRN[dirs[i].MRN])
	}
	slog.Info("classification complete",
		"archive", domain.Count(dirs, domain.ActionArchive),
		"delete", domain.Count(dirs, domain.ActionDelete),
		"keep", domain.Count(dirs, domain.ActionKeep),
		"ignored", domain.Count(dirs, domain.ActionIgnore))
	return nil
}

func (c Classifier) classifyOne(d *domain.Directory, fields []domain.TreatmentField, trials []domain.TrialMembership, coneBeams []domain.ConeBeam4D) {
	// No treatment fields means the patient is assumed still under
	// treatment; any fields at all mean finished until proven otherwise.
	d.FinishedTreatment = len(fields) > 0

	for _, f := range fields {
		d.Name = f.PatientName()
		if f.LastFractionDate.After(d.LastFractionDate) {
			d.LastFractionDate = f.LastFractionDate
		}
		// An incomplete course of treatment overrides the finished flag.
		if f.PrescribedFractions != f.DeliveredFractions {
			d.FinishedTreatment = false
		}
	}

	// Grace window: a fraction delivered in the last GraceDays days keeps
	// the patient off the archive and delete lists even when the field
	// counts matched.
	if !d.LastFractionDate.IsZero() {
		cutoff := c.now().AddDate(0, 0, -c.graceDays())
		if !d.LastFractionDate.Before(cutoff) {
			d.FinishedTreatment = false
		}
	}

	if len(trials) > 0 {
		d.ClinicalTrial = true
		d.Name = trials[0].PatientName()
	}
	if len(coneBeams) > 0 {
		d.Has4D = true
		d.Name = coneBeams[0].PatientName()
	}

	if d.FinishedTreatment {
		if d.ClinicalTrial || d.Has4D {
			d.Action = domain.ActionArchive
		} else {
			d.Action = domain.ActionDelete
		}
	}
}

func (c Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Classifier) graceDays() int {
	if c.GraceDays > 0 {
		return c.GraceDays
	}
	return 14
}
