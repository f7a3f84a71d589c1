package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dasmlab/kultura/pkg/breaker"
	"github.com/dasmlab/kultura/pkg/cache"
	"github.com/dasmlab/kultura/pkg/config"
	"github.com/dasmlab/kultura/pkg/extract"
	"github.com/dasmlab/kultura/pkg/learning"
	"github.com/dasmlab/kultura/pkg/llm"
	"github.com/dasmlab/kultura/pkg/localize"
	"github.com/dasmlab/kultura/pkg/server"
	"github.com/dasmlab/kultura/pkg/service"
	"github.com/dasmlab/kultura/pkg/translate"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "kultura",
		Short: "Educational content localization service",
		Long: `kultura translates educational content and adapts it culturally for
students in Southeast and South Asia, and generates summaries, quizzes,
feedback and Word documents from it.

Provider credentials are read from AZURE_TRANSLATOR_*, AZURE_OPENAI_*,
AZURE_FORM_RECOGNIZER_* and LIBRETRANSLATE_URL. Server settings can also
be set in kultura.yaml or as KULTURA_* environment variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitViper(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./kultura.yaml)")
	flags.Int("port", 3000, "HTTP server port")
	flags.Int("grpc-port", 50051, "gRPC health server port (0 disables it)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("mt-engine", "azure", "Translation engine: azure or libretranslate")
	flags.String("extract-engine", "azure", "Document extraction engine: azure or local")
	flags.Duration("upstream-timeout", 60*time.Second, "Timeout for each external service call")
	flags.Bool("breaker", true, "Guard external services with circuit breakers")

	for _, name := range []string{"port", "grpc-port", "log-level", "mt-engine", "extract-engine", "upstream-timeout", "breaker"} {
		v.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func newLogger(levelName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func run(cfg *config.Config) error {
	logger := newLogger(cfg.Server.LogLevel)

	logger.WithFields(logrus.Fields{
		"port":             cfg.Server.Port,
		"grpc_port":        cfg.Server.GRPCPort,
		"mt_engine":        cfg.Server.MTEngine,
		"extract_engine":   cfg.Server.ExtractEngine,
		"upstream_timeout": cfg.Server.UpstreamTimeout.String(),
		"breaker":          cfg.Server.Breaker,
		"log_level":        logger.GetLevel().String(),
	}).Info("Starting kultura server")

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("Invalid configuration")
		return err
	}

	newBreaker := func(name string) *breaker.Breaker {
		if !cfg.Server.Breaker {
			return nil
		}
		return breaker.New(breaker.Settings{Name: name, Logger: logger})
	}

	// Translation engine
	engineType, err := translate.ParseEngineType(cfg.Server.MTEngine)
	if err != nil {
		return err
	}
	baseURL := cfg.Providers.TranslatorEndpoint
	if engineType == translate.EngineLibreTranslate {
		baseURL = cfg.Providers.LibreTranslateURL
	}
	translator, err := translate.NewTranslator(translate.Config{
		Engine:  engineType,
		BaseURL: baseURL,
		Key:     cfg.Providers.TranslatorKey,
		Region:  cfg.Providers.TranslatorRegion,
		Timeout: cfg.Server.UpstreamTimeout,
		Breaker: newBreaker("translator"),
		Logger:  logger,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create translator")
		return err
	}

	// Completion client
	var completer llm.Completer = llm.NewClient(llm.Config{
		Endpoint:   cfg.Providers.OpenAIEndpoint,
		APIKey:     cfg.Providers.OpenAIKey,
		Deployment: cfg.Providers.OpenAIDeployment,
		APIVersion: cfg.Providers.OpenAIAPIVersion,
		Timeout:    cfg.Server.UpstreamTimeout,
		Logger:     logger,
	})
	if b := newBreaker("openai"); b != nil {
		completer = llm.WithBreaker(completer, b)
	}

	// Document extraction
	extractEngine, err := extract.ParseEngineType(cfg.Server.ExtractEngine)
	if err != nil {
		return err
	}
	extractor, err := extract.NewExtractor(extract.Config{
		Engine:   extractEngine,
		Endpoint: cfg.Providers.FormRecognizerEndpoint,
		Key:      cfg.Providers.FormRecognizerKey,
		Timeout:  cfg.Server.UpstreamTimeout,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create extractor")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caches := cache.NewService(cache.DefaultTTLs(), logger)
	caches.Start(ctx, cfg.Server.CacheSweepInterval)

	svc := service.New(
		localize.NewPipeline(translator, completer, logger),
		extractor,
		learning.NewGenerator(completer, logger),
		caches,
		logger,
	)

	httpServer := server.NewHTTPServer(svc, logger, cfg.Server.Port, cfg.Server.MaxUploadBytes)

	errChan := make(chan error, 2)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *server.GRPCServer
	if cfg.Server.GRPCPort > 0 {
		grpcServer = server.NewGRPCServer(translator, logger, cfg.Server.GRPCPort)
		grpcServer.WatchTranslator(ctx, 30*time.Second)
		go func() {
			if err := grpcServer.Start(); err != nil {
				errChan <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errChan:
		logger.WithError(runErr).Error("Server error")
	case sig := <-sigChan:
		logger.WithFields(logrus.Fields{
			"signal": sig.String(),
		}).Info("Received signal, shutting down gracefully...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if grpcServer != nil {
		grpcServer.Stop(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	return runErr
}
