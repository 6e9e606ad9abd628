package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobtrail/jobtrail/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobtrail",
		Short: "Draft cache and URL-synced session server for job listings",
		Long: `jobtrail holds the browser-side state of the job application tracker
on the server: pasted listing URLs are ingested into drafts, reviewed,
edited and saved, and list views keep their filters in the URL.

Configuration is read from jobtrail.json in the working directory,
then overridden by JOBTRAIL_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to jobtrail.json (default: ./jobtrail.json)")

	root.AddCommand(
		serveCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", fmt.Sprintf(format, args...))
}
