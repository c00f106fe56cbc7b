package main

import (
	"context"
	"fmt"
	"os"

	"campuspay/pkg/account"
	"campuspay/pkg/config"
	"campuspay/pkg/logging"

	"github.com/spf13/cobra"
)

var Version = "dev"

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	email      string
	password   string

	cfg    config.Config
	logger *logging.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "campuspay",
		Short:         "Campus payments: balance, card payments, history and support chat",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				opts.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.email, "email", "", "account email (default: the demo account)")
	flags.StringVar(&opts.password, "password", "", "account password")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(payCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))
	rootCmd.AddCommand(topupCmd(opts))
	rootCmd.AddCommand(chatCmd(opts))

	return rootCmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	if cfg.Log.Dev {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Log.Level
	if cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	// Command output goes to stdout; keep logs off it.
	logCfg.OutputPaths = []string{"stderr"}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetGlobal(logger)

	o.cfg = cfg
	o.logger = logger
	return nil
}

// signIn opens the session named by --email and --password, or the demo
// account when neither is set.
func (o *rootOptions) signIn(ctx context.Context, a *app) (*account.Session, error) {
	email, password := o.email, o.password
	if email == "" && password == "" {
		email, password = o.cfg.Demo.Email, o.cfg.Demo.Password
	}
	return a.directory.SignIn(ctx, email, password)
}

// withApp builds the app, runs fn and tears the app down.
func (o *rootOptions) withApp(fn func(a *app) error) error {
	a, err := newApp(o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
