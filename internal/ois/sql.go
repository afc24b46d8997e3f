package ois

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"xviarchive/internal/config"
	"xviarchive/internal/domain"
)

// Column set every provider query must select, keyed to the row structs.
const rowColumns = "mrn, last_name, first_name, middle_name"

// SQL is the Provider backed by the site's OIS database. The production
// OIS is SQL Server; the sqlite driver serves local mirrors and tests.
type SQL struct {
	cfg config.OIS

	mu sync.Mutex
	db *sqlx.DB
}

// NewSQL returns a provider for the configured OIS. No connection is made
// until the first query.
func NewSQL(cfg config.OIS) *SQL {
	return &SQL{cfg: cfg}
}

// Close releases the underlying connection pool, if one was opened.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQL) conn(ctx context.Context) (*sqlx.DB, error) {
	if !s.cfg.Configured() {
		return nil, fmt.Errorf("%w: connection not configured", ErrUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	driver, dsn := s.dsn()
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, Unavailable(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Unavailable(err)
	}
	s.db = db
	return db, nil
}

func (s *SQL) dsn() (driver, dsn string) {
	if s.cfg.Driver == "sqlite" {
		return "sqlite", s.cfg.Database
	}
	u := url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(s.cfg.User, s.cfg.Password),
		Host:   fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
	}
	q := url.Values{}
	q.Set("database", s.cfg.Database)
	u.RawQuery = q.Encode()
	return "sqlserver", u.String()
}

func (s *SQL) FinishedTreatment(ctx context.Context, mrns []string) ([]domain.TreatmentField, error) {
	var rows []domain.TreatmentField
	cols := rowColumns + ", presc_fractions, deliv_fractions, last_fraction_date"
	err := s.selectRows(ctx, &rows, s.cfg.Queries.FinishedTreatment, cols, "treatment_fields", mrns)
	return rows, err
}

func (s *SQL) ClinicalTrials(ctx context.Context, mrns []string) ([]domain.TrialMembership, error) {
	var rows []domain.TrialMembership
	err := s.selectRows(ctx, &rows, s.cfg.Queries.ClinicalTrials, rowColumns, "clinical_trials", mrns)
	return rows, err
}

func (s *SQL) Has4D(ctx context.Context, mrns []string) ([]domain.ConeBeam4D, error) {
	var rows []domain.ConeBeam4D
	err := s.selectRows(ctx, &rows, s.cfg.Queries.Has4D, rowColumns, "cone_beam_4d", mrns)
	return rows, err
}

// selectRows runs either the site-specific override query (which must
// contain one IN (?) placeholder for the MRN list) or the built-in
// statement against the default table layout.
func (s *SQL) selectRows(ctx context.Context, dest any, override, cols, table string, mrns []string) error {
	if len(mrns) == 0 {
		return nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	var query string
	var args []any
	if strings.TrimSpace(override) != "" {
		query, args, err = sqlx.In(override, mrns)
		if err != nil {
			return fmt.Errorf("expand OIS query: %w", err)
		}
	} else {
		query, args, err = sq.Select(cols).From(table).Where(sq.Eq{"mrn": mrns}).ToSql()
		if err != nil {
			return fmt.Errorf("build OIS query: %w", err)
		}
	}
	query = db.Rebind(query)

	start := time.Now()
	err = db.SelectContext(ctx, dest, query, args...)
	slog.Debug("OIS query completed", "table", table, "mrns", len(mrns), "duration", time.Since(start))
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	return nil
}
