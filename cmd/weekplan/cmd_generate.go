package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appLog "weekplan/internal/log"
	"weekplan/internal/model"
	"weekplan/internal/store"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate candidate schedules for a week",
	Long: `Generate reads courses, fixed events and flexible requests, then prints
the alternative schedules. Generation is deterministic, so the option
numbers printed here are the ones "select" accepts.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	_, set, err := generate(cmd.Context())
	if err != nil {
		return err
	}
	if err := printCandidates(cmd.OutOrStdout(), set); err != nil {
		return err
	}
	printSelection(cmd.OutOrStdout(), store.NewFile(cfg.DataPath, cfg.SelectedPath), set.Week)
	return nil
}

// printSelection notes the option already selected for week, if any.
func printSelection(w io.Writer, f *store.File, week model.Week) {
	sel, err := f.LoadSelection()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("generate: reading last selection failed", err)
		}
		return
	}
	if sel.WeekStart != week.Start.Format("2006-01-02") {
		return
	}
	fmt.Fprintf(w, "\nCurrently selected: option %d (at %s)\n", sel.Index, sel.SelectedAt.Local().Format("Jan 2 15:04"))
}

// printCandidates writes one block per schedule with its events in day
// and start order.
func printCandidates(w io.Writer, set model.CandidateSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Week of %s\n", set.Week.Start.Format("Mon Jan 2, 2006"))
	for _, m := range set.Malformed {
		fmt.Fprintf(tw, "warning: %v\n", m)
	}
	for _, u := range set.Unavailable {
		fmt.Fprintf(tw, "warning: %v, its events were not considered\n", u)
	}
	for i, s := range set.Schedules {
		fmt.Fprintf(tw, "\nOption %d\n", i)
		events := slices.Clone(s.Events)
		slices.SortStableFunc(events, func(a, b model.PlacedEvent) int {
			if a.Day != b.Day {
				return a.Day - b.Day
			}
			return a.StartSlot - b.StartSlot
		})
		for _, ev := range events {
			fmt.Fprintf(tw, "  %s\t%s - %s\t%s\t%s\n",
				set.Week.Date(ev.Day).Format("Mon 1/2"),
				model.FormatClock(ev.StartSlot*set.SlotMinutes),
				model.FormatClock(ev.EndSlot()*set.SlotMinutes),
				ev.Kind,
				ev.Title,
			)
		}
		if summary := s.Summary(); summary != "" {
			fmt.Fprintf(tw, "  %s\n", summary)
		}
	}
	return tw.Flush()
}
