package main

import (
	"github.com/spf13/cobra"

	"NewsRelay/internal/app"
	"NewsRelay/internal/config"
	"NewsRelay/internal/logging"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "newsrelay",
		Short: "Relay world news headlines to a Telegram chat",
		Long: `newsrelay polls news feeds, drops duplicates, ranks what is left by heat
and posts it to a Telegram chat. Overnight items are held back and sent as
a single digest in the morning.

Example usage:
  newsrelay run --once          # one cycle, for external schedulers
  newsrelay run                 # built-in cron loop (POLL_SCHEDULE)
  newsrelay check-telegram      # verify the bot token and chat`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $NEWSRELAY_CONFIG)")

	root.AddCommand(newRunCmd(&cfgFile), newCheckTelegramCmd(&cfgFile))
	return root
}

func newRunCmd(cfgFile *string) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run dispatch cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := build(cmd, *cfgFile)
			if err != nil {
				return err
			}
			defer application.Close()

			if once {
				_, err := application.RunOnce(cmd.Context())
				return err
			}
			return application.RunLoop(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func newCheckTelegramCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-telegram",
		Short: "Verify the bot token and post a test message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := build(cmd, *cfgFile)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.CheckTelegram(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("telegram ok")
			return nil
		},
	}
}

func build(cmd *cobra.Command, cfgFile string) (*app.Application, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return app.New(cmd.Context(), cfg, logger)
}
