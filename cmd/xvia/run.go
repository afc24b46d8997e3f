package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"xviarchive/internal/domain"
	"xviarchive/internal/engine"
	"xviarchive/internal/report"
)

func runCmd() *cobra.Command {
	var performArchive, shutdown bool
	var schedule string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the automated clean-up job and email the report",
		Long: `Run performs a quick scan and classification, optionally executes the
archive action against everything classified ARCHIVE (--perform-archive),
and emails the configured report. Deletion candidates are only ever listed
in the report, never deleted automatically.

With --schedule the job repeats on a cron expression instead of running
once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, settings, err := newEngine()
			if err != nil {
				return err
			}
			logFile := setupLogging(settings)
			slog.Info("will automatically perform archive operation", "perform_archive", performArchive)

			if schedule != "" {
				c := cron.New()
				_, err := c.AddFunc(schedule, func() {
					runJob(cmd.Context(), eng, logFile, performArchive)
				})
				if err != nil {
					return fmt.Errorf("invalid schedule: %w", err)
				}
				slog.Info("scheduled clean-up job", "schedule", schedule)
				c.Run()
				return nil
			}

			runJob(cmd.Context(), eng, logFile, performArchive)
			if shutdown {
				slog.Info("will now shut down the system")
				return exec.Command("shutdown", "-s").Run()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&performArchive, "perform-archive", false, "execute the archive action after scanning")
	cmd.Flags().BoolVar(&shutdown, "shutdown", false, "shut the system down when the job completes")
	cmd.Flags().StringVar(&schedule, "schedule", "", "repeat the job on a cron expression, e.g. \"0 2 * * 6\"")
	return cmd
}

// runJob is one automated pass: scan, classify, optionally archive, report.
func runJob(ctx context.Context, eng *engine.Engine, logFile string, performArchive bool) {
	jobStart := time.Now()
	var jobErrors []string
	var dirs, archived []domain.Directory

	slog.Info("will scan locations now")
	// File sizes aren't used by the automated job, so scan quick.
	h, err := eng.StartScan(ctx, true)
	if err != nil {
		jobErrors = append(jobErrors, "Scan failed: "+err.Error())
	} else {
		payload, errs := followTask(h)
		jobErrors = append(jobErrors, errs...)
		dirs, _ = payload.([]domain.Directory)
	}
	slog.Info("finished scanning locations")

	if performArchive && dirs == nil {
		jobErrors = append(jobErrors, "Archive skipped: the scan did not complete")
	}
	if performArchive && dirs != nil {
		if err := eng.CheckActionPreconditions(domain.ActionArchive); err != nil {
			jobErrors = append(jobErrors, err.Error())
		} else {
			ah, err := eng.StartAction(domain.Filter(dirs, domain.ActionArchive), domain.ActionArchive)
			if err != nil {
				jobErrors = append(jobErrors, "Archive failed: "+err.Error())
			} else {
				payload, errs := followTask(ah)
				jobErrors = append(jobErrors, errs...)
				archived, _ = payload.([]domain.Directory)
			}
		}
	}

	rep := report.Report{
		Directories: dirs,
		Archived:    archived,
		Errors:      jobErrors,
		JobStart:    jobStart,
		JobFinish:   time.Now(),
		LogFile:     logFile,
	}
	if err := report.SendEmail(eng.Settings.Email, rep); err != nil {
		slog.Error("could not send email report", "error", err)
	}
}
