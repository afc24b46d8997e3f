package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xviarchive/internal/domain"
)

func applyCmd() *cobra.Command {
	var actionName string
	var mrns []string
	var dryRun, yes bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute the archive or delete action against classified directories",
		Long: `Apply scans and classifies the XVI locations (quick scan), then executes
the requested action against every matching directory, or only the MRNs
given with --mrn. Archive copies each directory to the archive destination,
verifies the copy by total size, and only then deletes the source.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := domain.ParseAction(strings.ToUpper(actionName))
			if err != nil {
				return err
			}
			if act != domain.ActionArchive && act != domain.ActionDelete {
				return fmt.Errorf("--action must be ARCHIVE or DELETE")
			}

			eng, settings, err := newEngine()
			if err != nil {
				return err
			}
			setupLogging(settings)
			eng.DryRun = dryRun

			if err := eng.CheckActionPreconditions(act); err != nil {
				return err
			}

			h, err := eng.StartScan(cmd.Context(), true)
			if err != nil {
				return err
			}
			dirs, err := followDirectories(h)
			if err != nil {
				return err
			}

			selected := domain.Filter(dirs, act)
			if len(mrns) > 0 {
				selected = filterMRNs(selected, mrns)
			}
			if len(selected) == 0 {
				fmt.Println("no directories to", strings.ToLower(string(act)))
				return nil
			}

			fmt.Printf("will %s %d directories:\n", strings.ToLower(string(act)), len(selected))
			for _, d := range selected {
				fmt.Println("  " + d.Label() + " (" + d.FullPath() + ")")
			}
			if !yes && !confirm(act) {
				fmt.Println("aborted")
				return nil
			}

			ah, err := eng.StartAction(selected, act)
			if err != nil {
				return err
			}
			payload, _ := followTask(ah)
			actioned, _ := payload.([]domain.Directory)
			fmt.Printf("%d of %d directories actioned\n", len(actioned), len(selected))
			return nil
		},
	}
	cmd.Flags().StringVar(&actionName, "action", "", "ARCHIVE or DELETE")
	cmd.Flags().StringArrayVar(&mrns, "mrn", nil, "restrict the action to these MRNs (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "rehearse the action without copying or deleting")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

// confirm asks the operator to type the action back, since what follows is
// irreversible.
func confirm(act domain.Action) bool {
	fmt.Printf("type %s to confirm: ", act)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == string(act)
}

func filterMRNs(dirs []domain.Directory, mrns []string) []domain.Directory {
	want := make(map[string]bool, len(mrns))
	for _, m := range mrns {
		want[m] = true
	}
	out := make([]domain.Directory, 0, len(dirs))
	for _, d := range dirs {
		if want[d.MRN] {
			out = append(out, d)
		}
	}
	return out
}
