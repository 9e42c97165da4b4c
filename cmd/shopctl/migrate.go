package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := env()
			ctx := cmd.Context()
			db, err := postgres.Connect(ctx, cfg.PostgresDSN, 2)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			applied, err := postgres.Migrate(ctx, db, args[0])
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], name)
			}
			return nil
		},
	}
}
