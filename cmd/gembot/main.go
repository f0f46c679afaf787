package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gembot/internal/assemble"
	"gembot/internal/attach"
	"gembot/internal/bus"
	"gembot/internal/channel"
	"gembot/internal/config"
	"gembot/internal/deliver"
	"gembot/internal/dispatch"
	"gembot/internal/generator"
	"gembot/internal/history"
	"gembot/internal/metrics"
	"gembot/internal/persona"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "gembot",
		Short: "gembot: Telegram bot backed by Gemini",
		Long:  "gembot answers Telegram messages and photo albums with Gemini, coalescing rapid-fire messages into single replies.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.gembot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(config.ExpandPath(cfg.Attachments.Dir), 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("next: set telegram.token and generation.apiKey, then run 'gembot gateway'")
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("telegram", "token_set", cfg.Telegram.Token != "", "allow_from", len(cfg.Telegram.AllowFrom))
			logger.Info("generation", "api_key_set", cfg.Generation.APIKey != "", "default_model", cfg.Generation.DefaultModel)
			logger.Info("aggregation",
				"text_window", cfg.Aggregation.TextWindow(),
				"album_window", cfg.Aggregation.AlbumWindow(),
				"max_burst", cfg.Aggregation.MaxBurstEvents,
			)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. aggregation.textWindowSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.logLevel debug)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("rejected: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the bot (Telegram polling + dispatch loop)",
		Long:  "Connects to Telegram and answers messages until interrupted. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is not set (edit %s)", cfgPath)
	}
	if cfg.Generation.APIKey == "" {
		return fmt.Errorf("generation.apiKey is not set (edit %s)", cfgPath)
	}

	logger = newLogger(cfg.General)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prof, err := persona.Load(cfg.General.PersonaPath, logger)
	if err != nil {
		return fmt.Errorf("persona: %w", err)
	}

	store, err := history.NewSQLiteStore(cfg.History.DBPath, cfg.Generation.DefaultModel, logger)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	attachments, err := attach.NewDiskStore(cfg.Attachments.Dir, logger)
	if err != nil {
		return fmt.Errorf("attachment store: %w", err)
	}

	eventBus := bus.New(100, logger)

	telegram := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		AllowFrom:   cfg.Telegram.AllowFrom,
		Agreement:   cfg.Telegram.AgreementText,
		Bus:         eventBus,
		History:     store,
		Attachments: attachments,
		Logger:      logger,
	})

	generators := generator.NewFactory(generator.FactoryConfig{
		APIKey:       cfg.Generation.APIKey,
		APIBase:      cfg.Generation.APIBase,
		SystemPrompt: prof.SystemPrompt,
		Logger:       logger,
	})

	pipeline := deliver.New(telegram, deliver.Config{
		MaxPayload: cfg.Delivery.MaxPayload,
		Retries:    cfg.Delivery.Retries,
		RetryDelay: cfg.Delivery.RetryDelay(),
		Logger:     logger,
	})
	assembler := assemble.New(store, attachments, logger)

	coordinator := dispatch.New(eventBus.Subscribe(), assembler, generators, pipeline, telegram, store, dispatch.Config{
		TextWindow:        cfg.Aggregation.TextWindow(),
		AlbumWindow:       cfg.Aggregation.AlbumWindow(),
		MaxBurstEvents:    cfg.Aggregation.MaxBurstEvents,
		GenerationTimeout: cfg.Generation.Timeout(),
		Logger:            logger,
	})

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coordinator.Run(ctx)
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", metrics.Collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Endpoint, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Endpoint)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	logger.Info("gateway started", "persona", prof.Name, "version", version)
	if err := telegram.Start(ctx); err != nil {
		stop()
		<-coordDone
		return fmt.Errorf("telegram channel: %w", err)
	}

	logger.Info("shutting down gateway...")
	eventBus.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}

	select {
	case <-coordDone:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func newLogger(general config.GeneralConfig) *slog.Logger {
	var level slog.Level
	switch general.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if general.LogFile != "" {
		if f, err := os.OpenFile(general.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, logging to stderr", "path", general.LogFile, "err", err)
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
