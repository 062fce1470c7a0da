package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the built-in companions when the catalog is empty",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "seed")
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.registry.Seed(ctx)
			if err != nil {
				return fmt.Errorf("seed companions: %w", err)
			}
			if n == 0 {
				log.Info().Msg("catalog already populated; nothing seeded")
			} else {
				log.Info().Int("inserted", n).Msg("companions seeded")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d companions\n", n)
			return nil
		},
	}
}
