package main

import (
	"fmt"
	"os"

	"github.com/benvon/dayplan/cmd/planctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:          "planctl",
		Short:        "Administration tool for dayplan",
		Long:         "CLI tool for migrating the schema, materializing plans and inspecting recurring templates",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewMaterializeCmd())
	rootCmd.AddCommand(commands.NewPreviewCmd())
	rootCmd.AddCommand(commands.NewTemplatesCmd())
	rootCmd.AddCommand(commands.NewAuthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
