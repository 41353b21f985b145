package commands

import (
	"runtime"

	"github.com/leapstack-labs/leapdoc/internal/cli/output"
	"github.com/spf13/cobra"
)

// VersionInfo is the build information reported by the version command.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info VersionInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display LeapDoc version and build information.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info.GoVersion = runtime.Version()
			r := NewCommandContextWithoutEngine(cmd).Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(info)
			}
			r.Printf("LeapDoc v%s\n", info.Version)
			r.Println("Document generation from tabular data built with Go")
			if info.Commit != "" && info.Commit != "unknown" {
				r.KeyValue("Commit", info.Commit)
			}
			if info.BuildDate != "" && info.BuildDate != "unknown" {
				r.KeyValue("Built", info.BuildDate)
			}
			r.KeyValue("Go", info.GoVersion)
			return nil
		},
	}
}
