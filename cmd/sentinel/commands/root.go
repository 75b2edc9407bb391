package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/acheong08/sentinel/internal/config"
	"github.com/acheong08/sentinel/internal/osv"
	"github.com/acheong08/sentinel/internal/pool"
	"github.com/acheong08/sentinel/internal/registry"
)

// Version information - set via ldflags during build
var (
	version = "dev"
	commit  = "unknown"
)

// cfg is loaded before any subcommand runs
var cfg *config.Config

// NewRootCommand builds the sentinel command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		SilenceUsage: true,
		Use:          "sentinel",
		Short:        "Dependency vulnerability and typosquatting risk analyzer",
		Version:      version,
		Long: `Sentinel scores every dependency in a requirements.txt from 0 to 100.

It checks each package against OSV for known vulnerabilities, compares its name
with popular PyPI packages to catch typosquats, and looks up its age on PyPI.
Configuration can be provided via flags, a .env file or environment variables
(prefix SENTINEL_).`,
		Example: `  # Scan requirements.txt in the current directory
  sentinel scan

  # Scan a file and export JSON
  sentinel scan requirements-dev.txt --format json --output report.json

  # Read from stdin
  cat requirements.txt | sentinel scan -`,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = loaded

			level, _ := config.ParseLevel(cfg.LogLevel)
			config.InitLogger(cmd.ErrOrStderr(), level)
			slog.Debug("configuration loaded", "osv", cfg.OSVURL, "pypi", cfg.PyPIURL, "workers", cfg.Workers)
			return nil
		},
	}

	root.PersistentFlags().StringP(config.KeyLogLevel, "l", "info", "Set the log level. Options: debug, info, warn, error")
	root.PersistentFlags().String(config.KeyOSVURL, osv.DefaultBaseURL, "OSV API base URL")
	root.PersistentFlags().String(config.KeyPyPIURL, registry.DefaultBaseURL, "PyPI base URL")
	root.PersistentFlags().Int(config.KeyWorkers, pool.DefaultWorkers, "Concurrent lookups per batch")
	root.PersistentFlags().Duration(config.KeyTimeout, osv.DefaultTimeout, "Timeout for each external request")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Sentinel\n")
			fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", commit)
		},
	}

	root.AddCommand(versionCmd, NewScanCommand())
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
