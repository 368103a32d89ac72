// Package cli implements the cloudbackend command line: the guestbook and
// talk sample applications, and a local fake backend to run them against.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mobilebackend/cloudbackend.go/pkg/config"
	"github.com/mobilebackend/cloudbackend.go/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	Endpoint   string
	PushURL    string
	Credential string
	LogLevel   string

	Config *config.Config
	log    *logger.LogData
}

func (o *RootOptions) Logger() zerolog.Logger {
	if o.log == nil {
		return zerolog.Nop()
	}
	return o.log.Logger
}

// NewRootCommand creates the root command of the cloudbackend CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cloudbackend",
		Short:         "Mobile cloud backend client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.log != nil {
				return opts.log.Close()
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	flags.StringVar(&opts.Endpoint, "endpoint", "", "backend root URL")
	flags.StringVar(&opts.PushURL, "push-url", "", "push websocket URL")
	flags.StringVar(&opts.Credential, "credential", "", "bearer credential")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewGuestbookCommand(opts))
	cmd.AddCommand(NewTalkCommand(opts))
	cmd.AddCommand(NewFakeServerCommand(opts))

	return cmd
}

// load builds the effective config: file, dotenv, environment, then flags.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath, o.EnvFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = o.Endpoint
	}
	if flags.Changed("push-url") {
		cfg.PushURL = o.PushURL
	}
	if flags.Changed("credential") {
		cfg.Credential = o.Credential
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	build := logger.New().FromBuffer(cmd.ErrOrStderr()).Level(cfg.Log.Level).Console(cfg.Log.Console)
	if cfg.Log.Path != "" {
		build = build.FromPath(cfg.Log.Path)
	}
	if o.log, err = build.Make(); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}
