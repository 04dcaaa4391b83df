package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/hilsim/internal/monitoring"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "hilsim",
	Short: "Hardware-in-the-loop sensor bridge",
	Long:  "hilsim drives a flight computer with simulated IMU, barometer, magnetometer and GPS data over a serial link.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := monitoring.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		monitoring.SetSlogLogger(monitoring.NewLogger(cmd.ErrOrStderr(), level))
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(versionCmd)
}
