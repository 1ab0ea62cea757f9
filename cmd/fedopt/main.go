package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/fedopt-io/fedopt/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fedopt",
		Short: "Fedopt CLI",
		Long:  `Fedopt CLI is a command line interface for running and inspecting federated optimization experiments.`,
	}

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewCheckpointsCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
