package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"mvpforge/internal/config"
	"mvpforge/internal/history"
	"mvpforge/internal/logging"
	"mvpforge/internal/orchestrator"
	"mvpforge/internal/server"
	"mvpforge/internal/store"
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
	Use:     "mvpforge",
	Short:   "Unattended MVP factory",
	Long:    "mvpforge discovers product ideas from community signals, generates MVP code bundles, and publishes them on a fixed cadence.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
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
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mvpforge", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/mvpforge/",
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
		fmt.Println("Edit it to configure signal channels, publish targets, and API keys.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depths and daily counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("loading stats: %w", err)
		}
		pending, _ := st.PendingIdeas()
		built, _ := st.BuiltIdeas()
		skipped, _ := st.SkippedIdeas()

		fmt.Printf("Today: %s\n\n", stats.Date)
		fmt.Println("Queue:")
		fmt.Printf("  Pending: %d\n", len(pending))
		fmt.Printf("  Built: %d\n", len(built))
		fmt.Printf("  Skipped: %d\n", len(skipped))
		fmt.Println("\nToday:")
		fmt.Printf("  Ideas discovered: %d / %d\n", stats.IdeasToday, cfg.Limits.IdeasPerDay)
		fmt.Printf("  Builds completed: %d / %d\n", stats.BuildsToday, cfg.Limits.BuildsPerDay)
		fmt.Println("\nLifetime:")
		fmt.Printf("  Ideas: %d\n", stats.TotalIdeas)
		fmt.Printf("  Builds: %d\n", stats.TotalBuilds)
		fmt.Printf("  Skipped: %d\n", stats.TotalSkipped)
		fmt.Printf("  Duplicates dropped: %d\n", stats.TotalDuplicates)

		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		cycles, err := ledger.RecentCycles(5)
		if err != nil {
			return err
		}
		if len(cycles) > 0 {
			fmt.Println("\nRecent cycles:")
			for _, c := range cycles {
				outcome := "ok"
				if !c.OK {
					outcome = "failed"
				}
				fmt.Printf("  %s  %-9s %-6s %s\n", c.Started.Format("2006-01-02 15:04"), c.Kind, outcome, c.Detail)
			}
		}
		return nil
	},
}

// --- daemon command ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the factory loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath := cfg.Logging.File
		if logPath == "" {
			logPath = "factory.log"
		}
		if !filepath.IsAbs(logPath) {
			logPath = filepath.Join(cfg.GetDataDir(), logPath)
		}
		rot, err := logging.Setup(logPath, cfg.Logging.MaxSizeMB, true)
		if err != nil {
			return err
		}
		defer rot.Close()

		st, err := openStore()
		if err != nil {
			return err
		}
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf("mvpforge %s starting", version)
		return orchestrator.New(cfg, st, ledger).Run(ctx)
	},
}

// --- one-shot cycle commands ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(func(ctx context.Context, o *orchestrator.Orchestrator) error {
			return o.RunDiscovery(ctx)
		})
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run one build cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(func(ctx context.Context, o *orchestrator.Orchestrator) error {
			return o.RunBuild(ctx)
		})
	},
}

func runOnce(fn func(context.Context, *orchestrator.Orchestrator) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, orchestrator.New(cfg, st, ledger))
}

// --- requeue command ---

var requeueCmd = &cobra.Command{
	Use:   "requeue [id]",
	Short: "Move a built idea back into the pending queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		idea, err := st.Requeue(args[0])
		if err != nil {
			return fmt.Errorf("requeueing %s: %w", args[0], err)
		}
		fmt.Printf("Requeued: %s\n", idea.Title)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting dashboard at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(st, ledger, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run the dashboard on (default from config)")
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.GetDataDir())
}

func openLedger() (*history.DB, error) {
	return history.Open(filepath.Join(cfg.GetDataDir(), "mvpforge.db"))
}
