package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"newsharvest/internal/article"
	"newsharvest/internal/config"
	"newsharvest/internal/fetch"
	"newsharvest/internal/llm"
	"newsharvest/internal/pipeline"
	"newsharvest/internal/report"
	"newsharvest/internal/store"
	"newsharvest/internal/validate"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsharvest",
	Short:   "Category-driven news article harvester",
	Long:    "newsharvest discovers, extracts, validates, and stores news articles from configured seed pages, deduplicated by source URL.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(log.LstdFlags)
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Logging.Debug() {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsharvest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsharvest/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure seed pages, budgets, and the validator.")
		return nil
	},
}

// --- run command ---

var (
	dryRun       bool
	onlyCategory string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full harvest pass: discover -> fetch -> extract -> score -> validate -> persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if onlyCategory != "" {
			if !article.ValidCategory(onlyCategory) {
				return fmt.Errorf("unknown category %q (valid: %v)", onlyCategory, article.Categories)
			}
			seeds := cfg.Seeds[onlyCategory]
			cfg.Seeds = map[string][]string{onlyCategory: seeds}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if dryRun {
			return printDryRun(db)
		}

		fetcher := fetch.New(fetch.Options{
			Timeout:            cfg.Fetcher.Timeout(),
			MaxRetries:         fetchRetries(),
			Backoff:            cfg.Fetcher.Backoff(),
			CacheTTL:           cfg.Fetcher.CacheTTL(),
			PerHostInterval:    cfg.Fetcher.PerHostInterval(),
			InsecureSkipVerify: cfg.Fetcher.InsecureSkipVerify,
		})

		var validator pipeline.Validator
		if cfg.Validator.Enabled {
			provider := llm.CreateProvider(
				cfg.Validator.Provider,
				cfg.Validator.Model,
				cfg.Validator.OllamaURL,
				cfg.Validator.OpenAIModel,
				cfg.Validator.APIKeyEnv,
			)
			if provider != nil {
				validator = validate.New(provider, cfg.Validator.MaxAttempts, cfg.Validator.MaxTokens)
			} else {
				log.Println("Validator enabled but no provider available; continuing without AI validation")
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipe := pipeline.New(cfg, db, fetcher, validator)
		result, runErr := pipe.Run(ctx)

		fmt.Println("\nHarvest complete:")
		for _, c := range result.Categories {
			fmt.Printf("  %s: %d new (%d duplicates, %d rejected, %d failed)\n",
				c.Category, c.Persisted, c.Duplicates, c.Rejected, c.Failed)
		}

		if path, err := report.Write(cfg.GetDataDir(), result); err != nil {
			log.Printf("Could not write run report: %v", err)
		} else {
			fmt.Printf("\nReport written: %s\n", path)
		}

		if runErr != nil {
			return fmt.Errorf("harvest interrupted: %w", runErr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be harvested without fetching")
	runCmd.Flags().StringVar(&onlyCategory, "category", "", "Harvest a single category")
}

// fetchRetries picks the retry budget: AI-enhanced runs use the shorter
// validator budget so slow sources don't stall LLM throughput.
func fetchRetries() int {
	if cfg.Validator.Enabled && cfg.Validator.MaxRetries > 0 {
		return cfg.Validator.MaxRetries
	}
	return cfg.Fetcher.MaxRetries
}

func printDryRun(db *store.DB) error {
	counts, err := db.CountByCategory()
	if err != nil {
		return err
	}

	fmt.Println("[dry-run] Harvest plan:")
	for _, cat := range article.Categories {
		seeds := cfg.Seeds[cat]
		if len(seeds) == 0 {
			continue
		}
		fmt.Printf("  %s: %d seeds, %d stored, target %d new per run\n",
			cat, len(seeds), counts[cat], cfg.Budget.TargetPerCategory)
	}
	return nil
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Articles stored: %d\n\n", stats.TotalArticles)
		cats := make([]string, 0, len(stats.PerCategory))
		for c := range stats.PerCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			fmt.Printf("  %s: %d\n", c, stats.PerCategory[c])
		}
		return nil
	},
}

// --- report command ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest harvest report",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := report.Latest(cfg.GetDataDir())
		if err != nil {
			return err
		}
		if body == "" {
			fmt.Println("No reports yet. Run 'newsharvest run' first.")
			return nil
		}
		fmt.Println(body)
		return nil
	},
}

func openDB() (*store.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "newsharvest.db"))
}
