package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"tipbot/engine/custody"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new custody encryption key for TIPBOT_ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := custody.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			printConfig()
		},
	}
}
