package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/internal/config"
	"github.com/kittclouds/barswitch/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bbswitch",
	Short: "Keep several bookmark bars and switch between them",
	Long: `bbswitch stores named collections of bookmarks ("bars") under a
BookmarkBars folder and swaps one of them at a time into the bookmarks bar.

The bookmark tree lives in a SQLite file. Edits made to that file by other
processes are picked up by "bbswitch watch", which repairs renames, deleted
folders and a deleted or edited current-bar pointer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bookmark database and the default bar",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bars; the current one is marked with *",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var selectCmd = &cobra.Command{
	Use:   "select NAME",
	Short: "Show bar NAME in the bookmarks bar",
	Args:  cobra.ExactArgs(1),
	RunE:  runSelect,
}

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty bar",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var itemsCmd = &cobra.Command{
	Use:   "items [NAME]",
	Short: "List the bookmarks of a bar (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runItems,
}

var addCmd = &cobra.Command{
	Use:   "add TITLE URL",
	Short: "Add a bookmark to the bookmarks bar",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdd,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile edits made to the database until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var exportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write the bookmark tree as JSON (default: stdout)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the bookmark tree with a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var (
	listJSON    bool
	metricsAddr string
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bbswitch.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Bookmark database (overrides store.path and BBSWITCH_DB)")

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print the popup JSON")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
