package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"avmcp/internal/mcp"
	"avmcp/internal/version"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseFormat(versionFormat)
		if err != nil {
			return err
		}
		if format == FormatJSON {
			data, err := json.MarshalIndent(map[string]interface{}{
				"version":          version.Version,
				"commit":           version.Commit,
				"buildDate":        version.BuildDate,
				"protocolVersions": mcp.SupportedProtocolVersions,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(version.Full())
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", string(FormatHuman), "Output format (human, json)")
	rootCmd.AddCommand(versionCmd)
}
