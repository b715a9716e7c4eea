// Command promoadmin is the operator console for the promo bot. It talks to
// the same database as the bot and uses the same environment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	env := &environment{}

	rootCmd := &cobra.Command{
		Use:   "promoadmin",
		Short: "Operator tools for the promo code bot",
		Long: `promoadmin inspects and repairs the promo bot state:
participants, the promo code pool, the Google Sheets mirror and exports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.open()
		},
	}

	rootCmd.AddCommand(statsCmd(env))
	rootCmd.AddCommand(auditCmd(env))
	rootCmd.AddCommand(usersCmd(env))
	rootCmd.AddCommand(codesCmd(env))
	rootCmd.AddCommand(syncCmd(env))
	rootCmd.AddCommand(exportCmd(env))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
