package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sweep",
		Short:         "Expire stale redemption tokens once and exit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.redemptions.ExpireStaleTokens(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d redemption(s)\n", count)
			return nil
		},
	}
}
