package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the pay_links and lnurlp_settings tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.close()

		log.Info("Database migrations executed successfully", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}
