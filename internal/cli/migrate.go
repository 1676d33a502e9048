package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/repositories"
)

// NewMigrateCommand applies the schema and checks referential integrity.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and verify integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := repositories.NewStore(database).VerifyIntegrity(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready: driver=%s\n", cfg.DBDriver)
			return nil
		},
	}
}
