package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxrules/internal/logging"
)

var (
	configPath string
	debugMode  bool
	logFormat  string
)

// rootCmd represents the base command for the inboxrules application
var rootCmd = &cobra.Command{
	Use:   "inboxrules",
	Short: "Applies user-defined rules to unread Gmail inbox messages",
	Long: `inboxrules evaluates unread inbox emails against prioritized rules and
applies the matching action: tag, archive, mark as read or move.

It can run as:
  - A one-shot CLI that processes or previews a mailbox
  - An HTTP API server with background processing jobs`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(logging.NewLogger(os.Stderr, logFormat, debugMode))
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxrules version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file. Can also use INBOXRULES_CONFIG env var.")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
