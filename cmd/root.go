package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mcpd365 application
var rootCmd = &cobra.Command{
	Use:   "mcpd365",
	Short: "Exposes Dynamics 365 data entities as MCP tools",
	Long: `mcpd365 is a protocol gateway that lets AI assistants work with
Dynamics 365 Finance and Operations data through the Model Context
Protocol (MCP).

It authenticates against Microsoft Entra ID with client credentials,
discovers the environment's OData entity catalog, and exposes query,
record and action operations as MCP tools.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpd365 version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newEntitiesCmd())
	rootCmd.AddCommand(newVersionCmd())
}
