package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/enneagram-backend/internal/data/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and indexes",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	svc, err := openDB()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrated (%s)\n", svc.Driver())
	return nil
}
