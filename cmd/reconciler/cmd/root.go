package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reconciliation-engine/cmd/reconciler/config"
	"reconciliation-engine/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// appConfig is resolved once per invocation before any command runs
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Local-first bank reconciliation",
	Long: `Reconciler matches bank statement exports against the ledger kept in a
local database, explains what does not match, and keeps a history of every
completed reconciliation.

Examples:
  reconciler accounts add --id checking --name "Business Checking"
  reconciler import-ledger --file journal.csv
  reconciler reconcile --account checking --statement march.csv --complete
  reconciler history --account checking
  reconciler unreconciled --output-format json`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("database", "", "path to the SQLite database (default reconciler.db)")
	flags.String("company", "", "company id (default \"default\")")
	flags.String("user", "", "user id recorded in history and audit entries")
	flags.String("device-id", "", "device id stamped into version vectors (default host name)")
	flags.StringP("output-format", "f", "", "output format: console, json, csv")
	flags.StringP("output-file", "o", "", "output file path (default: stdout)")

	// Bind flags to viper under their config keys
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("database", flags.Lookup("database"))
	viper.BindPFlag("company", flags.Lookup("company"))
	viper.BindPFlag("user", flags.Lookup("user"))
	viper.BindPFlag("device_id", flags.Lookup("device-id"))
	viper.BindPFlag("output.format", flags.Lookup("output-format"))
	viper.BindPFlag("output.file", flags.Lookup("output-file"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// loadConfig resolves the configuration and installs the global logger
func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logConfig := cfg.Log
	if viper.GetBool("verbose") {
		logConfig.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(&logConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)

	appConfig = cfg
	return nil
}

// outputWriter returns where reports go and a function that closes it
func outputWriter(cmd *cobra.Command) (io.Writer, func() error, error) {
	if appConfig == nil || appConfig.Output.File == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(appConfig.Output.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, file.Close, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
