package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "mcimsyncd",
		Short: "Mirror-sync daemon for CurseForge and Modrinth catalogs",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yml", "path to the YAML/JSON config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newConfigDumpCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler and run every configured job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), *configPath)
		},
	}
}

func newConfigDumpCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Load and print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", cfg)
			return nil
		},
	}
}

func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}

	log := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	if err := registerJobs(app); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	app.Scheduler.Start()
	log.Info("mcimsyncd: scheduler started")

	<-ctx.Done()
	log.Info("mcimsyncd: shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer stopCancel()
	if err := app.Scheduler.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("mcimsyncd: scheduler did not stop cleanly")
	}
	return nil
}

// newLogger builds the process logger once; components receive child
// entries tagged with their component name.
func newLogger(cfg *config.Config) *logrus.Entry {
	logger := logrus.New()
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.LogToFile {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	return logrus.NewEntry(logger)
}
