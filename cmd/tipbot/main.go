package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"tipbot/engine/actors"
	"tipbot/engine/library"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "tipbot",
		Short:   "Custodial tipping bot for social mentions",
		Version: Version,
		// config is loaded for every subcommand, secrets only where they are needed
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Various aspect of this application require global and local settings. To keep things
			// clean and tidy we put these settings in a Viper configuration.
			conf := viper.New()
			if root, _ := cmd.Flags().GetString("root"); root != "" {
				conf.Set("rootDir", root)
			}
			actors.InitConfig(conf)
			actors.SetConfig(conf)
			if cmd.Flags().Changed("log-level") {
				level, _ := cmd.Flags().GetInt("log-level")
				library.SetLogLevel(level)
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("root", "", "working directory (default ~/tipbot/)")
	rootCmd.PersistentFlags().Int("log-level", 4, "0 fatal .. 5 trace")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(ensureCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(withdrawCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
