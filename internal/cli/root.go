// Package cli provides the command-line interface for Gavel.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/gavel-sh/gavel/internal/adapter"
	"github.com/gavel-sh/gavel/internal/adapter/stdout"
	"github.com/gavel-sh/gavel/internal/config"
	"github.com/gavel-sh/gavel/internal/control"
	"github.com/gavel-sh/gavel/internal/domain/decision"
	"github.com/gavel-sh/gavel/internal/router"
	"github.com/gavel-sh/gavel/internal/store"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile    string
	verbose    bool
	outputJSON bool
	noColor    bool
	actorID    string
	actorType  string

	// Global config
	cfg *config.Config

	// Logger
	logger *log.Logger

	// Styles
	styles = struct {
		Title   lipgloss.Style
		Success lipgloss.Style
		Error   lipgloss.Style
		Warning lipgloss.Style
		Info    lipgloss.Style
		Subtle  lipgloss.Style
		Bold    lipgloss.Style
	}{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gavel",
	Short: "Governance and execution control plane for auditable decisions",
	Long: `Gavel records decisions, enforces approval and policy rules, and
dispatches approved decisions to execution adapters. Every state change is
captured as an immutable, hash-verifiable event.

Typical flow:
  gavel create --goal "rotate prod credentials"
  gavel attach-policy <decision-id> --min-approvals 2
  gavel approve <decision-id> --actor alice
  gavel execute <decision-id>
  gavel status <decision-id>`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: gavel.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "acting user id (defaults to $USER)")
	rootCmd.PersistentFlags().StringVar(&actorType, "actor-type", "human", "actor type (human or system)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(attachPolicyCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(adaptersCmd)
	rootCmd.AddCommand(attestCmd)
}

func initConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	level := cfg.Output.LogLevel
	if verbose {
		level = "debug"
	}
	parsed, err := log.ParseLevel(level)
	if err == nil {
		logger.SetLevel(parsed)
	}
	if cfg.Output.NoColor || noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return nil
}

// currentActor resolves the acting identity from flags and environment.
func currentActor() decision.Actor {
	id := actorID
	if id == "" {
		id = os.Getenv("USER")
	}
	if id == "" {
		id = "unknown"
	}
	t := decision.ActorHuman
	if actorType == string(decision.ActorSystem) {
		t = decision.ActorSystem
	}
	return decision.Actor{Type: t, ID: id}
}

// openStore opens the configured event store.
func openStore() (*store.Store, error) {
	return store.Open(&store.Config{
		Path:         cfg.Store.Path,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		MaxIdleConns: cfg.Store.MaxIdleConns,
		WALMode:      cfg.Store.WALMode,
		BusyTimeout:  cfg.Store.BusyTimeout,
	}, logger)
}

// openService opens the store and wraps it in a control-plane service.
// The caller closes the returned store.
func openService() (*control.Service, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return control.NewService(st, logger), st, nil
}

// buildRegistry constructs the adapter registry from configuration.
func buildRegistry() (*adapter.Registry, error) {
	registry := adapter.NewRegistry()

	stdoutCfg := cfg.Adapters["stdout"]
	if err := registry.Register(stdout.New(stdoutCfg), stdout.Manifest); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildRouter constructs the dispatcher over an open store.
func buildRouter(st *store.Store) (*router.Router, error) {
	registry, err := buildRegistry()
	if err != nil {
		return nil, err
	}
	return router.New(st, registry, router.Config{
		ApplyEnabled:     cfg.Router.ApplyEnabled,
		DefaultAdapterID: cfg.Router.DefaultAdapter,
		CallTimeout:      cfg.Router.CallTimeout,
	}, logger), nil
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
