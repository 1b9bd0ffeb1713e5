// Package main is the entry point for the diabetes dashboard.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cristi184/diabetDashApp-sub000/internal/bloodsugar"
	"github.com/Cristi184/diabetDashApp-sub000/internal/chart"
	"github.com/Cristi184/diabetDashApp-sub000/internal/chat"
	"github.com/Cristi184/diabetDashApp-sub000/internal/config"
	"github.com/Cristi184/diabetDashApp-sub000/internal/dexcom"
	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/navigator"
	"github.com/Cristi184/diabetDashApp-sub000/internal/realtime"
	"github.com/Cristi184/diabetDashApp-sub000/internal/server"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage/postgres"
	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "diabetdash",
		Short:         "Diabetes dashboard: glucose charts and patient/clinician messaging",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(importDexcomCmd())
	rootCmd.AddCommand(validateConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var dexcomSubject string
	var dexcomInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(dexcomSubject, dexcomInterval)
		},
	}
	cmd.Flags().StringVar(&dexcomSubject, "dexcom-subject", "", "subject to import Dexcom readings for while serving")
	cmd.Flags().DurationVar(&dexcomInterval, "dexcom-interval", 5*time.Minute, "Dexcom polling interval")
	return cmd
}

func runServer(dexcomSubject string, dexcomInterval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.logger

	hub := realtime.NewHub(realtime.WithHubLogger(log))
	defer hub.Close()

	if a.pg != nil {
		listener := postgres.NewListener(a.pg.Pool(), a.store, hub, log)
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error().Err(err).Msg("message listener stopped")
			}
		}()
	}

	charts, err := chart.NewService(a.store,
		chart.WithCacheSize(a.cfg.ChartCacheSize),
		chart.WithFetchTimeout(a.cfg.FetchTimeout),
		chart.WithLogger(log),
	)
	if err != nil {
		return err
	}

	if dexcomSubject != "" {
		if !a.cfg.HasDexcom() {
			return errors.New("--dexcom-subject needs DEXCOM_USERNAME and DEXCOM_PASSWORD")
		}
		importer := dexcom.NewImporter(dexcom.NewClient(a.cfg.DexcomUsername, a.cfg.DexcomPassword), a.store, log)
		go pollDexcom(ctx, importer, dexcomSubject, dexcomInterval)
	}

	srv := server.New(server.Deps{
		Charts:   charts,
		Events:   a.store,
		Messages: a.messageStore(hub),
		PubSub:   hub,
	},
		server.WithLogger(log),
		server.WithLocation(a.loc),
		server.WithAutoMarkRead(a.cfg.AutoMarkRead),
		server.WithSwipeThreshold(a.cfg.SwipeThresholdPx),
		server.WithAllowedOrigins(a.cfg.Origins()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(":" + a.cfg.HTTPPort)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// pollDexcom imports the last interval's readings every interval until ctx is done.
func pollDexcom(ctx context.Context, importer *dexcom.Importer, subjectID string, interval time.Duration) {
	minutes := int(interval.Minutes()) + 5
	importOnce := func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		// Import logs its own outcome.
		_, _ = importer.Import(ctx, subjectID, minutes, minutes/5+1)
	}

	importOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			importOnce()
		case <-ctx.Done():
			return
		}
	}
}

func chartCmd() *cobra.Command {
	var rangeFlag string
	var back int
	var clinician bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chart <subject-id>",
		Short: "Print a subject's glucose, meal and treatment timeline for one period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := timewindow.ParseGranularity(rangeFlag)
			if err != nil {
				return err
			}
			if back < 0 {
				return fmt.Errorf("--back must not be negative")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			nav := navigator.New(
				navigator.WithGranularity(g),
				navigator.WithOffset(-back),
				navigator.WithSwipeThreshold(a.cfg.SwipeThresholdPx),
			)

			charts, err := chart.NewService(a.store,
				chart.WithFetchTimeout(a.cfg.FetchTimeout),
				chart.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}

			var opts []chart.AlignOption
			if clinician {
				opts = append(opts, chart.WithoutTreatments())
			}
			res, err := charts.ChartPoints(ctx, args[0], nav.Granularity(), nav.Offset(), time.Now().In(a.loc), opts...)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printChart(res, a.loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&rangeFlag, "range", string(timewindow.Day), "period length: day, week, month, 2months, 3months")
	cmd.Flags().IntVar(&back, "back", 0, "number of periods before the current one")
	cmd.Flags().BoolVar(&clinician, "clinician", false, "clinician view (no treatment points)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printChart(res chart.Result, loc *time.Location) {
	fmt.Printf("Window: %s\n", res.Window)
	if res.Empty() {
		fmt.Println("No data in this period.")
		return
	}
	fmt.Println()

	var readings []domain.GlucoseReading
	for _, p := range res.Points {
		glucose := "   -"
		status := ""
		if p.Plottable() {
			glucose = fmt.Sprintf("%4.0f", *p.Glucose)
			status = string(bloodsugar.ClassifyRange(*p.Glucose))
		}
		fmt.Printf("  %s  %-9s  %s mg/dL  %-8s  %s\n",
			p.Timestamp.In(loc).Format("Jan 02 15:04"), p.Kind, glucose, status, describe(p.Payload))

		if r, ok := p.Payload.(domain.GlucoseReading); ok {
			readings = append(readings, r)
		}
	}

	s := bloodsugar.Summarize(readings)
	fmt.Println()
	fmt.Printf("Readings: %d  Mean: %.0f mg/dL (%.1f mmol/L)  Min: %.0f  Max: %.0f  In range: %.0f%%\n",
		s.Count, s.Mean, bloodsugar.MgdlToMmol(s.Mean), s.Min, s.Max, s.TimeInRange()*100)
	if res.DataErrors > 0 {
		fmt.Printf("Skipped %d event(s) with unreadable timestamps.\n", res.DataErrors)
	}
}

func describe(p domain.Payload) string {
	switch v := p.(type) {
	case domain.GlucoseReading:
		return v.Note
	case domain.MealEvent:
		return fmt.Sprintf("%s, %.0fg carbs", v.Name, v.CarbsGrams)
	case domain.TreatmentEvent:
		name := v.MedicationName
		if v.Type == domain.TreatmentInsulin {
			name = string(v.InsulinClass) + " insulin"
		}
		return fmt.Sprintf("%s %g%s", name, v.DoseAmount, v.DoseUnit)
	default:
		return ""
	}
}

func conversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations <user-id>",
		Short: "List a user's conversations, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			convs, err := chat.NewInbox(a.store).Conversations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			for _, c := range convs {
				last := ""
				if c.LastMessage != nil {
					last = c.LastMessage.CreatedAt.In(a.loc).Format("Jan 02 15:04") + "  " + c.LastMessage.Body
				}
				fmt.Printf("  %-24s  unread: %-3d  %s\n", c.CounterpartyID, c.UnreadCount, last)
			}
			return nil
		},
	}
}

func importDexcomCmd() *cobra.Command {
	var minutes, maxCount int
	var watch bool

	cmd := &cobra.Command{
		Use:   "import-dexcom <subject-id>",
		Short: "Import CGM readings from Dexcom Share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.cfg.HasDexcom() {
				return errors.New("DEXCOM_USERNAME and DEXCOM_PASSWORD must be set")
			}
			importer := dexcom.NewImporter(dexcom.NewClient(a.cfg.DexcomUsername, a.cfg.DexcomPassword), a.store, a.logger)

			res, err := importer.Import(ctx, args[0], minutes, maxCount)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d reading(s), skipped %d.\n", res.Imported, res.Skipped)

			if !watch {
				return nil
			}
			fmt.Println("Watching. Press Ctrl+C to stop.")
			pollDexcom(ctx, importer, args[0], 5*time.Minute)
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 1440, "how far back to import")
	cmd.Flags().IntVar(&maxCount, "max-count", 288, "maximum number of readings")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep importing every 5 minutes")
	return cmd
}

func validateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("Configuration is valid.")
			fmt.Printf("  HTTP port:       %s\n", cfg.HTTPPort)
			fmt.Printf("  Store driver:    %s\n", cfg.StoreDriver)
			if cfg.StoreDriver == config.DriverPostgres {
				fmt.Printf("  Database URL:    %s\n", maskSecret(cfg.DatabaseURL))
			} else {
				fmt.Printf("  SQLite path:     %s\n", cfg.SQLitePath)
			}
			fmt.Printf("  Log:             %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
			fmt.Printf("  Timezone:        %s\n", cfg.Timezone)
			fmt.Printf("  Auto mark-read:  %t\n", cfg.AutoMarkRead)
			fmt.Printf("  Chart cache:     %d\n", cfg.ChartCacheSize)
			fmt.Printf("  Fetch timeout:   %s\n", cfg.FetchTimeout)
			if origins := cfg.Origins(); len(origins) > 0 {
				fmt.Printf("  WS origins:      %s\n", strings.Join(origins, ", "))
			} else {
				fmt.Printf("  WS origins:      same-origin only\n")
			}
			fmt.Printf("  Dexcom user:     %s\n", maskSecret(cfg.DexcomUsername))
			return nil
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
