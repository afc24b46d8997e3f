// Package ois queries the oncology information system for the clinical
// facts that drive directory classification.
package ois

import (
	"context"
	"errors"
	"fmt"

	"xviarchive/internal/domain"
)

// ErrUnavailable means the OIS cannot be queried at all: either the
// connection is not configured or the server cannot be reached. The whole
// classification aborts on this error.
var ErrUnavailable = errors.New("OIS unavailable")

// Provider returns per-MRN clinical facts. Implementations must return
// ErrUnavailable (possibly wrapped) when they cannot execute queries.
type Provider interface {
	// FinishedTreatment returns the treatment-field rows for the MRNs.
	FinishedTreatment(ctx context.Context, mrns []string) ([]domain.TreatmentField, error)
	// ClinicalTrials returns clinical-trial membership rows for the MRNs.
	ClinicalTrials(ctx context.Context, mrns []string) ([]domain.TrialMembership, error)
	// Has4D returns 4D cone-beam presence rows for the MRNs.
	Has4D(ctx context.Context, mrns []string) ([]domain.ConeBeam4D, error)
}

// Unavailable wraps err as an ErrUnavailable.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
