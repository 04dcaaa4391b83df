package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/hilsim/internal/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPorts(cmd, transport.SerialOpener{})
	},
}

func listPorts(cmd *cobra.Command, opener transport.Opener) error {
	ports, err := opener.ListPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
