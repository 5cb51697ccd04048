package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weekplan/internal/capture"
)

var (
	captureURL    string
	captureIndex  int
	captureOutput string
	captureWidth  int
	captureHeight int
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Screenshot a candidate preview page to PNG",
	Long: `Capture loads /preview/{index} from a running "weekplan serve" in
headless Chromium and writes a PNG once the page reports it is ready.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureURL, "url", "", "Server base URL (default http://<listen>)")
	captureCmd.Flags().IntVarP(&captureIndex, "index", "i", 0, "Candidate option number")
	captureCmd.Flags().StringVarP(&captureOutput, "out", "o", "./var/preview.png", "Output PNG path")
	captureCmd.Flags().IntVar(&captureWidth, "width", 0, "Viewport width in pixels (default: layout width)")
	captureCmd.Flags().IntVar(&captureHeight, "height", capture.DefaultHeight, "Viewport height in pixels")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, _ []string) error {
	opts := capture.Options{
		BaseURL:    captureURL,
		Index:      captureIndex,
		OutputPath: captureOutput,
		Width:      captureWidth,
		Height:     captureHeight,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://" + cfg.Listen
	}
	if opts.Width == 0 {
		opts.Width = int(cfg.Layout.ViewportWidth)
	}
	if cfg.BasicAuth != nil {
		opts.Username = cfg.BasicAuth.Username
		opts.Password = cfg.BasicAuth.Password
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := capture.PreviewPNG(ctx, opts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", captureOutput)
	return nil
}
