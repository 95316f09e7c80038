package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arena-server/internal/arena"
)

// hashPasswordCmd prints the digest clients' passwords are compared against,
// handy when checking what a protected lobby expects.
func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the lobby hash of a password",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), arena.HashPassword(args[0]))
		},
	}
}
