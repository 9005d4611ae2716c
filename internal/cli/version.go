package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ahrdadan/rodplus/internal/config"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config or logger needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s v%s (%s %s/%s)\n",
				config.AppName, config.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}

func newConfigCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeYAML(cmd.OutOrStdout(), st.cfg)
		},
	}
}
