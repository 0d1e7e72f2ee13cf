// clipmark-migrate converts a v4 database into the v5 layout.
//
// The migration never touches the source file: it opens it read-only,
// builds the new database in a temp file next to the destination, and
// renames it into place only after every table copied cleanly.
//
// Usage:
//
//	clipmark-migrate --source old/clipmark.db --dest data/clipmark.db
//
// Flags fall back to the CLIPMARK_SOURCE and CLIPMARK_DEST environment
// variables.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipmark/clipmark/internal/migrate"
)

const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

var (
	flagSource  string
	flagDest    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "clipmark-migrate",
	Short:         "Migrate a clipmark database from schema v4 to v5",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		source := viper.GetString("source")
		dest := viper.GetString("dest")
		if source == "" || dest == "" {
			return fmt.Errorf("both --source and --dest are required")
		}

		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		return migrate.Run(cmd.Context(), source, dest, logger)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagSource, "source", "", "path to the v4 database (opened read-only)")
	rootCmd.Flags().StringVar(&flagDest, "dest", "", "path for the new v5 database (must not exist)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log each table as it is copied")

	viper.SetEnvPrefix("clipmark")
	viper.AutomaticEnv()
	viper.BindPFlag("source", rootCmd.Flags().Lookup("source"))
	viper.BindPFlag("dest", rootCmd.Flags().Lookup("dest"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if os.IsNotExist(err) || os.IsPermission(err) {
			os.Exit(exitSysError)
		}
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}
