package main

import (
	"time"

	"github.com/spf13/cobra"

	appLog "weekplan/internal/log"
	"weekplan/internal/metrics"
	"weekplan/internal/model"
	"weekplan/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the candidate API and preview pages",
	Long: `Serve exposes the candidates over HTTP and regenerates them on the
configured refresh schedule. Without --week the planned week follows the
current date.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	// Fail fast on a bad --week or timezone.
	if _, err := planWeek(cfg, weekFlag, time.Now()); err != nil {
		return err
	}

	m := metrics.New()
	svc, err := newService(cfg, m)
	if err != nil {
		return err
	}

	week := func() model.Week {
		w, err := planWeek(cfg, weekFlag, time.Now())
		if err != nil {
			appLog.Error("resolve week failed", err)
		}
		return w
	}

	appLog.Info("weekplan starting", "version", version, "listen", cfg.Listen, "refresh", cfg.RefreshCron)
	ctx, cancel := signalContext()
	defer cancel()

	if err := web.NewServer(cfg, svc, m, week).Run(ctx); err != nil {
		return err
	}
	appLog.Info("weekplan exiting")
	return nil
}
