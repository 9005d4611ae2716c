// Package cli wires the rodplus commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/config"
	"github.com/ahrdadan/rodplus/internal/observability"
)

// configKey annotates a flag with the config key it overrides.
const configKey = "rodplus_config_key"

type state struct {
	configFile string
	cfg        *config.Config
	logger     *zap.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	st := &state{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "rodplus",
		Short:         "Element-level browser automation over go-rod",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.load(cmd)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("%s v{{.Version}}\n", config.AppName))
	root.PersistentFlags().StringVarP(&st.configFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(root.PersistentFlags(), "log-level", "logger.level")

	root.AddCommand(
		newServeCommand(st),
		newInspectCommand(st),
		newConfigCommand(st),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func bindFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKey, []string{key})
}

// load resolves configuration from defaults, file, environment and the
// flags of cmd, then builds the logger.
func (st *state) load(cmd *cobra.Command) error {
	v, err := config.NewViper(st.configFile)
	if err != nil {
		return err
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[configKey]
		if !ok || !f.Changed || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	st.cfg = cfg
	st.logger = observability.Initialize(cfg.Logger)
	return nil
}
