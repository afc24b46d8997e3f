package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xviarchive/internal/domain"
	"xviarchive/internal/report"
	"xviarchive/internal/task"
)

// pollInterval is how often task queues are drained.
const pollInterval = 100 * time.Millisecond

func scanCmd() *cobra.Command {
	var quick bool
	var csvPath string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the XVI locations and classify patient directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, settings, err := newEngine()
			if err != nil {
				return err
			}
			setupLogging(settings)

			h, err := eng.StartScan(cmd.Context(), quick)
			if err != nil {
				return err
			}
			dirs, err := followDirectories(h)
			if err != nil {
				return err
			}

			if csvPath != "" {
				if err := exportCSV(csvPath, dirs); err != nil {
					return err
				}
				fmt.Println("exported to", csvPath)
			}
			if viper.GetBool("json") {
				return printJSON(dirs)
			}
			printDirectories(dirs, quick)
			return nil
		},
	}
	cmd.Flags().BoolVar(&quick, "quick", false, "skip directory size computation")
	cmd.Flags().StringVar(&csvPath, "csv", "", "export the classified list to a CSV file")
	return cmd
}

// followTask polls h until its result, echoing progress to stdout and
// errors to stderr. It returns the result payload and the error texts seen.
func followTask(h *task.Handle) (any, []string) {
	var errs []string
	payload := h.Follow(pollInterval, func(m task.Message) {
		switch m.Kind {
		case task.KindError:
			fmt.Fprintf(os.Stderr, "ERROR [%s] %s\n", m.ErrorKind, m.Text)
			errs = append(errs, m.Text)
		default:
			fmt.Println(m.Text)
		}
	})
	return payload, errs
}

// followDirectories follows a scan task. A completed scan always carries a
// directory slice, possibly empty; any other payload means the scan failed
// or was cancelled.
func followDirectories(h *task.Handle) ([]domain.Directory, error) {
	payload, errs := followTask(h)
	dirs, ok := payload.([]domain.Directory)
	if !ok {
		if len(errs) > 0 {
			return nil, fmt.Errorf("scan failed: %s", strings.Join(errs, "; "))
		}
		return nil, fmt.Errorf("scan was cancelled before producing a result")
	}
	return dirs, nil
}

func printDirectories(dirs []domain.Directory, quick bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"MRN", "Name", "Action", "Finished", "Trial", "4D", "Last Fraction", "Size", "Path"})
	for _, d := range dirs {
		if d.Action == domain.ActionIgnore {
			continue
		}
		lastFraction := ""
		if !d.LastFractionDate.IsZero() {
			lastFraction = d.LastFractionDate.Format("2006-01-02")
		}
		size := ""
		if !quick {
			size = humanize.Bytes(uint64(d.SizeBytes))
		}
		tw.AppendRow(table.Row{d.MRN, d.Name, d.Action, d.FinishedTreatment, d.ClinicalTrial, d.Has4D, lastFraction, size, d.FullPath()})
	}
	tw.Render()

	fmt.Printf("scanned %d directories: %d to archive, %d to delete, %d to keep, %d ignored\n",
		len(dirs),
		domain.Count(dirs, domain.ActionArchive),
		domain.Count(dirs, domain.ActionDelete),
		domain.Count(dirs, domain.ActionKeep),
		domain.Count(dirs, domain.ActionIgnore))
}

func exportCSV(path string, dirs []domain.Directory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(f, dirs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
