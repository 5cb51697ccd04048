package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var selectIndex int

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Persist one candidate as the chosen schedule",
	Long: `Select regenerates the candidates for the week and saves the chosen
option to selected_path, and to export_ics_path when configured.`,
	Args: cobra.NoArgs,
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().IntVarP(&selectIndex, "index", "i", 0, "Candidate option number")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, _ []string) error {
	svc, set, err := generate(cmd.Context())
	if err != nil {
		return err
	}
	sch, err := svc.Select(cmd.Context(), set, selectIndex)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "selected option %d for week of %s (%d events)\n",
		selectIndex, set.Week.Start.Format("Jan 2, 2006"), len(sch.Events))
	if summary := sch.Summary(); summary != "" {
		fmt.Fprintln(out, summary)
	}
	return nil
}
