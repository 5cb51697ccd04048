package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	layoutIndex int
	layoutWidth float64
	layoutRow   float64
	layoutLines int
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the pixel layout of one candidate as JSON",
	Args:  cobra.NoArgs,
	RunE:  runLayout,
}

func init() {
	layoutCmd.Flags().IntVarP(&layoutIndex, "index", "i", 0, "Candidate option number")
	layoutCmd.Flags().Float64Var(&layoutWidth, "width", 0, "Viewport width in pixels (default from config)")
	layoutCmd.Flags().Float64Var(&layoutRow, "row", 0, "Row height in pixels (default from config)")
	layoutCmd.Flags().IntVar(&layoutLines, "lines", 0, "Axis line count (default from config)")
	rootCmd.AddCommand(layoutCmd)
}

func runLayout(cmd *cobra.Command, _ []string) error {
	svc, set, err := generate(cmd.Context())
	if err != nil {
		return err
	}

	p := cfg.Layout
	if layoutWidth > 0 {
		p.ViewportWidth = layoutWidth
	}
	if layoutRow > 0 {
		p.RowHeight = layoutRow
	}
	if layoutLines > 0 {
		p.AxisLineCount = layoutLines
	}

	l, err := svc.Layout(set, layoutIndex, p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(l)
}
