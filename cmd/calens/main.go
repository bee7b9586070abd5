package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/calens/calens/internal/cache"
	"github.com/calens/calens/internal/config"
	"github.com/calens/calens/internal/db"
	"github.com/calens/calens/internal/enrich"
	"github.com/calens/calens/internal/ics"
	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
	"github.com/calens/calens/internal/normalize"
	"github.com/calens/calens/internal/places"
	"github.com/calens/calens/internal/report"
	"github.com/calens/calens/internal/stats"
	"github.com/calens/calens/internal/watch"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"

	jsonOutput bool
)

func main() {
	// Best-effort; the environment wins over .env entries.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "calens",
		Short: "Calendar year-in-review pipeline",
		Long: `Calens imports calendar exports (Google Calendar JSON or ICS),
enriches events with venue and neighborhood data, classifies them
into social and activity buckets, and generates a year report.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
				return
			}
			fmt.Printf("calens %s (%s, %s)\n", version, commit, buildDate)
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize calens config and event store",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			store, err := db.Open()
			if err != nil {
				return err
			}
			defer store.Close()

			dbPath, _ := db.DefaultPath()
			if jsonOutput {
				printJSON(map[string]any{
					"ok":         true,
					"config_dir": configDir,
					"data_dir":   dataDir,
					"db_path":    dbPath,
				})
				return nil
			}
			fmt.Printf("Initialized calens\n  config: %s\n  data:   %s\n  db:     %s\n", configDir, dataDir, dbPath)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import calendar exports (Google Calendar JSON or ICS)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := db.Open()
			if err != nil {
				return err
			}
			defer store.Close()

			total := 0
			for _, path := range args {
				count, err := importFile(store, cfg, path)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				total += count
				if !jsonOutput {
					fmt.Printf("Imported %d events from %s\n", count, path)
				}
			}

			if jsonOutput {
				printJSON(map[string]any{"ok": true, "imported": total})
			}
			return nil
		},
	}
}

func importFile(store *db.Store, cfg *config.Config, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	tz, err := time.LoadLocation(cfg.TimezoneOrDefault())
	if err != nil {
		return 0, fmt.Errorf("load timezone: %w", err)
	}

	var events []model.Event
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ics":
		// Expand recurrences over a wide window around now.
		now := time.Now().In(tz)
		events, err = ics.Import(data, now.AddDate(-10, 0, 0), now.AddDate(1, 0, 0), tz)
		if err != nil {
			return 0, err
		}
	case ".json":
		raw, err := normalize.ParseExport(data)
		if err != nil {
			return 0, err
		}
		n, err := normalize.New(cfg.TimezoneOrDefault(), cfg.UserEmail)
		if err != nil {
			return 0, err
		}
		events = n.Events(raw)
	default:
		return 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	if len(events) == 0 {
		return 0, nil
	}
	if _, err := store.SaveEvents(events, path); err != nil {
		return 0, err
	}
	return len(events), nil
}

func reportCmd() *cobra.Command {
	var year int
	var skipLLM bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the year report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if year == 0 {
				year = time.Now().Year()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := db.Open()
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.EventsForYear(year)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return fmt.Errorf("no events for %d; run 'calens import' first", year)
			}

			rpt, err := buildReport(cmd.Context(), cfg, events, year, skipLLM)
			if err != nil {
				return err
			}
			if err := store.SaveReport(rpt); err != nil {
				return err
			}

			if jsonOutput {
				printJSON(rpt)
				return nil
			}
			printReport(rpt)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Report year (default: current year)")
	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Skip enrichment, classification, and narrative calls")
	return cmd
}

// buildReport runs the enrichment pipeline and folds everything into a
// report. With skipLLM the report carries stats only.
func buildReport(ctx context.Context, cfg *config.Config, events []model.Event, year int, skipLLM bool) (*model.Report, error) {
	resolved := cfg.Resolve()

	dataDir, err := config.GetDataDir()
	if err != nil {
		return nil, err
	}
	namespaces := append(append([]string{}, enrich.Namespaces...), report.Namespaces...)
	cacheStore := cache.Open(dataDir, namespaces...)

	var enrichment map[string]*model.LocationEnrichment
	var classifications map[string]*model.Classification

	if !skipLLM {
		geo := places.NewResolver(resolved.MapsKey)
		pipeline := enrich.New(resolved, cacheStore, geo)
		out, err := pipeline.Run(ctx, events)
		if out != nil {
			enrichment = out.Enrichment
			classifications = out.Classifications
		}
		if err != nil {
			logging.Error("enrichment pass incomplete", err, "year", year)
		}
	}

	friendStats := stats.ComputeFriendStats(events, 2)
	stats.ApplyEnrichments(friendStats, enrichment)
	timeStats := stats.ComputeTimeStats(events)
	locationStats := stats.ComputeLocationStats(enrichment, 5)
	inferred := stats.AggregateInferredFriends(events, classifications, enrichment)
	activities := stats.AggregateActivityStats(events, classifications, enrichment)
	merges := stats.SuggestMerges(inferred, friendStats)

	bundle := &report.Stats{
		Year:            year,
		TimeStats:       timeStats,
		Friends:         friendStats,
		InferredFriends: inferred,
		Activities:      activities,
		Locations:       locationStats,
		Merges:          merges,
	}

	if skipLLM {
		gen := report.NewGenerator(config.ResolvedPipeline{}, cacheStore)
		rpt := gen.Assemble(ctx, bundle)
		return rpt, nil
	}

	gen := report.NewGenerator(resolved, cacheStore)
	rpt := gen.Assemble(ctx, bundle)
	if err := cacheStore.Flush(); err != nil {
		logging.Error("cache flush failed", err)
	}
	return rpt, nil
}

func printReport(r *model.Report) {
	fmt.Printf("Year %d report (%s)\n\n", r.Year, r.ID)

	if ts := r.TimeStats; ts != nil {
		fmt.Printf("Events: %d  Hours: %.1f\n", ts.TotalEvents, ts.TotalHours)
		if ts.BusiestDay != nil {
			fmt.Printf("Busiest day: %s (%d events, %.1fh)\n", ts.BusiestDay.Date, ts.BusiestDay.EventCount, ts.BusiestDay.Hours)
		}
		fmt.Println()
	}

	if len(r.Friends) > 0 {
		fmt.Println("Top people:")
		for i, f := range r.Friends {
			if i == 10 {
				break
			}
			name := f.DisplayName
			if name == "" {
				name = f.Email
			}
			fmt.Printf("  %-30s %3d events  %6.1fh\n", name, f.EventCount, f.TotalHours)
		}
		fmt.Println()
	}

	if len(r.InferredFriends) > 0 {
		fmt.Println("Inferred from summaries:")
		for i, f := range r.InferredFriends {
			if i == 10 {
				break
			}
			fmt.Printf("  %-30s %3d events  %6.1fh\n", f.Name, f.EventCount, f.TotalHours)
		}
		fmt.Println()
	}

	if len(r.Activities) > 0 {
		categories := make([]string, 0, len(r.Activities))
		for category := range r.Activities {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		fmt.Println("Activities:")
		for _, category := range categories {
			a := r.Activities[category]
			fmt.Printf("  %-15s %3d events  %6.1fh\n", a.Category, a.EventCount, a.TotalHours)
		}
		fmt.Println()
	}

	if locs := r.Locations; locs != nil && len(locs.TopNeighborhoods) > 0 {
		fmt.Println("Top neighborhoods:")
		for _, n := range locs.TopNeighborhoods {
			fmt.Printf("  %-30s %d\n", n.Name, n.Count)
		}
		fmt.Println()
	}

	if len(r.Merges) > 0 {
		fmt.Println("Possible merges:")
		for _, m := range r.Merges {
			fmt.Printf("  %s -> %s (%s)\n", m.InferredName, m.SuggestedEmail, m.Confidence)
		}
		fmt.Println()
	}

	if r.Narrative != "" {
		fmt.Printf("Your year:\n%s\n\n", r.Narrative)
	}
	for _, insight := range r.Insights {
		fmt.Printf("* %s: %s\n", insight.Title, insight.Detail)
	}
	for _, exp := range r.Experiments {
		fmt.Printf("> %s: %s\n", exp.Title, exp.Description)
	}
}

func watchCmd() *cobra.Command {
	var dir string
	var debounceSec int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and import calendar exports as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.ImportDir
			}
			if dir == "" {
				return fmt.Errorf("no watch directory; pass --dir or set import_dir in config")
			}

			store, err := db.Open()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			w := watch.New(dir, time.Duration(debounceSec)*time.Second, func(paths []string) {
				for _, path := range paths {
					count, err := importFile(store, cfg, path)
					if err != nil {
						logging.Error("import failed", err, "path", path)
						continue
					}
					logging.Info("imported", "path", path, "events", count)
				}
			})

			err = w.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to watch (default: import_dir from config)")
	cmd.Flags().IntVar(&debounceSec, "debounce", 2, "Debounce seconds between change and import")
	return cmd
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
