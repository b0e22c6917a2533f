package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/pipeline/pipreader"
	"github.com/open-control-systems/card-detector/components/reader/rdpcsc"
	"github.com/open-control-systems/card-detector/components/system/sysconfig"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logPath    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "card-detector",
		Short:         "Run an action each time a smart card is inserted or removed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetector(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"configuration file path (JSON, YAML or TOML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"minimum log level, overrides the configuration")
	cmd.PersistentFlags().StringVar(&opts.logPath, "log-path", "",
		"log file path, overrides the configuration")

	cmd.AddCommand(newReadersCommand())

	return cmd
}

func newReadersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "List attached card readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			readers, err := rdpcsc.NewEnumerator(rdpcsc.EstablishContext).ListReaders()
			if err != nil {
				return err
			}

			if len(readers) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no readers attached")

				return nil
			}

			for _, reader := range readers {
				fmt.Fprintln(cmd.OutOrStdout(), reader)
			}

			return nil
		},
	}
}

func runDetector(ctx context.Context, opts *rootOptions) error {
	loader := sysconfig.NewLoader(opts.configPath)

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if err := applyLogging(cfg, opts); err != nil {
		return err
	}

	appContext, cancelFunc := signal.NotifyContext(ctx,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer cancelFunc()

	fanoutCloser := &core.FanoutCloser{}
	defer func() {
		if err := fanoutCloser.Close(); err != nil {
			core.LogErr.Printf("card-detector: failed to close resources: %v\n", err)
		}
	}()

	readerPipeline := pipreader.NewReaderPipeline(
		appContext,
		fanoutCloser,
		pipreader.SystemBackend(),
		pipreader.ReaderPipelineParams{
			Commands:         cfg.Actions,
			RecoveryInterval: cfg.RecoveryInterval,
			PollInterval:     cfg.PollInterval,
		})

	if err := readerPipeline.Start(); err != nil {
		return err
	}

	if opts.configPath != "" {
		if err := loader.Watch(func(cfg *sysconfig.Config) {
			readerPipeline.SetCommands(cfg.Actions)

			if opts.logLevel == "" {
				core.SetLogLevel(cfg.LogLevel)
			}
		}); err != nil {
			core.LogWrn.Printf("card-detector: configuration won't be reloaded: %v\n", err)
		}
	}

	core.LogInf.Println("card-detector: started")

	<-appContext.Done()

	core.LogInf.Println("card-detector: stopping")

	return nil
}

func applyLogging(cfg *sysconfig.Config, opts *rootOptions) error {
	level := cfg.LogLevel

	if opts.logLevel != "" {
		parsed, err := core.ParseLogLevel(opts.logLevel)
		if err != nil {
			return err
		}

		level = parsed
	}

	core.SetLogLevel(level)

	logPath := cfg.LogPath
	if opts.logPath != "" {
		logPath = opts.logPath
	}

	if logPath != "" {
		if err := core.SetLogFile(logPath); err != nil {
			return fmt.Errorf("failed to setup log file: %w", err)
		}
	}

	return nil
}
