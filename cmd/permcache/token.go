package main

import (
	"fmt"

	"github.com/platinummonkey/permcache/pkg/auth"
	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate internal API service tokens",
		Long: `Generates service tokens for callers of the internal API.

Hand the token to the calling service and add the hash to
server.internal_token_hashes. The token itself is not stored anywhere.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			gen := auth.NewTokenGenerator()
			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				token, hash, prefix, err := gen.GenerateToken()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "token:  %s\nhash:   %s\nprefix: %s\n", token, hash, prefix)
				if i < count-1 {
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of tokens to generate")
	return cmd
}
