package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/enneagram-backend/internal/app"
	"github.com/yungbote/enneagram-backend/internal/data/db"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

var (
	logMode string
	log     *logger.Logger
)

// rootCmd is the admin CLI for the assessment backend.
var rootCmd = &cobra.Command{
	Use:           "enneactl",
	Short:         "Administer the Enneagram assessment backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(logMode)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		app.LoadDotEnv(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", envutil.String("LOG_MODE", "development"), "logger mode (development|production)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(couponCmd)
	rootCmd.AddCommand(allowlistCmd)
	rootCmd.AddCommand(analysisCmd)
}

// openDB connects with the same DB_* / DATABASE_URL settings as the server.
func openDB() (*db.Service, error) {
	return db.Open(log, db.ConfigFromEnv())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
