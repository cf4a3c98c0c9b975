package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// DefaultVersion is used when no version is injected at build time.
const DefaultVersion = "v0.1.0"

// NewVersionCmd creates a new version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of TestMaster",
		Long:  `Print the version number of TestMaster CLI.`,
		Run: func(cmd *cobra.Command, args []string) {
			version := os.Getenv("TESTMASTER_VERSION")
			if version == "" {
				version = DefaultVersion
			}
			fmt.Printf("TestMaster CLI %s\n", version)
		},
	}
}
