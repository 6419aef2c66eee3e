package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/appshell/internal/version"
)

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			info := version.Get()
			out := c.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(out, "appshell %s (%s, built %s)\n", info.Version, info.GitCommit, info.BuildDate)
			fmt.Fprintf(out, "%s %s %s\n", info.GoVersion, info.Compiler, info.Platform)
			return nil
		},
	}

	c.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return c
}
