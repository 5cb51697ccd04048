package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weekplan/internal/config"
	"weekplan/internal/ics"
	appLog "weekplan/internal/log"
	"weekplan/internal/metrics"
	"weekplan/internal/model"
	"weekplan/internal/planner"
	"weekplan/internal/store"
)

const version = "0.1.0"

var (
	configPath string
	weekFlag   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "weekplan",
	Short: "Weekly schedule planner",
	Long: `weekplan fills the free time around courses and fixed events with
flexible activities and proposes several alternative weekly schedules.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&weekFlag, "week", "", "Any date in the week to plan (default: current week)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the configured logger.
func loadConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	appLog.Setup(appLog.ParseLevel(cfg.Log.Level), cfg.Log.Format, os.Stderr)

	appLog.Debug("effective config",
		"config_path", configPath,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"slot_minutes", cfg.SlotMinutes,
		"candidates", cfg.Candidates,
		"ics_count", len(cfg.ICS),
		"data_path", cfg.DataPath,
	)
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// planWeek resolves the --week flag. Without it the week containing now
// is planned.
func planWeek(c *config.Config, flag string, now time.Time) (model.Week, error) {
	loc, err := c.Location()
	if err != nil {
		return model.Week{}, err
	}
	t := now.In(loc)
	if flag != "" {
		t, err = model.ParseDate(flag, loc)
		if err != nil {
			return model.Week{}, fmt.Errorf("--week: %w", err)
		}
	}
	return model.NewWeek(t, c.FirstDay()), nil
}

// newService wires the data file, ICS subscriptions and the optional ICS
// export into a planner service.
func newService(c *config.Config, m *metrics.Metrics) (*planner.Service, error) {
	unavailable, err := c.UnavailableMinutes()
	if err != nil {
		return nil, err
	}

	file := store.NewFile(c.DataPath, c.SelectedPath)
	var commitments planner.CommitmentSource = file
	if sources := icsSources(c); len(sources) > 0 {
		commitments = planner.MergeSources(file, ics.NewFeed(c.CacheDir, sources))
	}

	stores := []planner.ScheduleStore{file}
	if c.ExportICSPath != "" {
		exp := ics.NewExporter(c.ExportICSPath, c.SlotMinutes)
		exp.IncludeCommitments = c.ExportIncludeCommitments
		stores = append(stores, exp)
	}

	return planner.NewService(commitments, file, stores, planner.Options{
		SlotMinutes:       c.SlotMinutes,
		Count:             c.Candidates,
		SpreadOccurrences: c.SpreadOccurrences,
		PadDuplicates:     c.PadDuplicates,
		Unavailable:       unavailable,
	}, m), nil
}

func icsSources(c *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(c.ICS))
	for _, csrc := range c.ICS {
		if csrc.URL == "" {
			continue
		}
		id := csrc.ID
		if id == "" {
			if csrc.Name != "" {
				id = csrc.Name
			} else {
				id = csrc.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: csrc.URL})
	}
	return sources
}

// generate runs one generation for the --week flag.
func generate(ctx context.Context) (*planner.Service, model.CandidateSet, error) {
	week, err := planWeek(cfg, weekFlag, time.Now())
	if err != nil {
		return nil, model.CandidateSet{}, err
	}
	svc, err := newService(cfg, nil)
	if err != nil {
		return nil, model.CandidateSet{}, err
	}
	set, err := svc.Generate(ctx, week)
	if err != nil {
		return nil, model.CandidateSet{}, err
	}
	return svc, set, nil
}
