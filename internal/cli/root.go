// Package cli implements the postsched command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"postsched/internal/app"
	"postsched/internal/config"
)

type rootOptions struct {
	configPath string
	storePath  string
	logLevel   string
	envFiles   []string
}

// NewRootCmd returns the postsched root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	legacy := &legacyFlags{}

	root := &cobra.Command{
		Use:   "postsched",
		Short: "Schedule posts to social platforms",
		Long: "postsched publishes short text posts to X/Twitter, Mastodon, Telegram and LinkedIn,\n" +
			"either immediately or at a scheduled time checked by 'postsched watch'.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if legacy.any() {
				return legacy.run(cmd, opts)
			}
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "./"+config.DefaultPath, "settings file (JSON or YAML); optional unless set explicitly")
	pf.StringVar(&opts.storePath, "store", "", "post store file (overrides store.path)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	pf.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "env files with platform credentials")

	legacy.register(root)

	root.AddCommand(newNowCmd(opts))
	root.AddCommand(newScheduleCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newCancelCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

// openApp builds the application for one command invocation.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, app.Options{
		ConfigPath:     opts.configPath,
		ConfigOptional: !cmd.Flags().Changed("config"),
		StorePath:      opts.storePath,
		LogLevel:       opts.logLevel,
		EnvFiles:       opts.envFiles,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		newPrinter(root.ErrOrStderr()).fail("Error: %v", err)
		return 1
	}
	return 0
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
