package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"laughtrackr/internal/config"
	"laughtrackr/internal/domain"
	"laughtrackr/internal/logging"
)

type commandContext struct {
	apiBaseFlag   string
	configFlag    string
	logLevelFlag  string
	logFormatFlag string

	once     sync.Once
	settings domain.Settings
	logger   *slog.Logger
	baseURL  string
	initErr  error
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				c.initErr = err
				return
			}
			path = p
		}
		settings, err := config.NewJSONStore(path).Load()
		if err != nil {
			c.initErr = err
			return
		}

		level := settings.LogLevel
		if strings.TrimSpace(c.logLevelFlag) != "" {
			level = c.logLevelFlag
		}
		logger, err := logging.New(logging.Options{Level: level, Format: c.logFormatFlag})
		if err != nil {
			c.initErr = err
			return
		}

		baseURL, source, err := config.Resolve(viper.New(), c.apiBaseFlag, settings.APIBase)
		if err != nil {
			c.initErr = err
			return
		}
		logger.Debug("analysis api resolved", "base_url", baseURL, "source", source)

		c.settings = settings
		c.logger = logger
		c.baseURL = baseURL
	})
	return c.initErr
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "laughtrackr",
		Short:         "Find and replay audience laughter in long recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return ctx.ensure()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.apiBaseFlag, "api-base", "", "Analysis API base URL (overrides LAUGHTRACKR_API_BASE and settings)")
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Settings file path")
	flags.StringVar(&ctx.logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&ctx.logFormatFlag, "log-format", "text", "Log format (text or json)")

	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDevServerCommand(ctx))

	return rootCmd
}
