package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hupe1980/botmesh"
	"github.com/hupe1980/botmesh/config"
	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/skill"
)

type cli struct {
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "botmesh",
		Short:         "Multi-turn slot-filling chatbot server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if c.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			c.logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(c.serveCmd(), c.checkCmd(), c.skillsCmd())
	return root
}

func (c *cli) serveCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook, broker subscription, monitor and schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := botmesh.New(ctx, cfg, func(o *botmesh.Options) {
				if cfg.Log.Format == "zap" {
					o.Logger = logging.NewZapAdapter(c.logger)
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "botmesh.yaml", "configuration file")
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration and its skill descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if cfg.Skills.Dir != "" {
				if _, err := skill.LoadDir(cfg.Skills.Dir); err != nil {
					return fmt.Errorf("skills: %w", err)
				}
			}
			c.logger.Debug("configuration valid", zap.String("path", path))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "botmesh.yaml", "configuration file")
	return cmd
}

func (c *cli) skillsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List the skill descriptors of a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := skill.LoadDir(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range descs {
				fmt.Fprintf(out, "%s\trequired=%s\toptional=%s\n",
					d.Type, parameterNames(d.RequiredParameters), parameterNames(d.OptionalParameters))
			}
			c.logger.Debug("skills listed", zap.String("dir", dir), zap.Int("count", len(descs)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "skills", "skill descriptor directory")
	return cmd
}

func parameterNames(ps []core.ParameterDescriptor) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
