package cmd

import (
	"github.com/spf13/cobra"

	"forge/config"
	"forge/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine's operations over the Model Context Protocol on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		return mcpserver.New(cfg).ServeStdio()
	},
}
