package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theimaginaryfoundation/mentapet/mood"
	"github.com/theimaginaryfoundation/mentapet/mood/provider"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	svc := mood.NewService(
		provider.NewChatGenerator(&client, cfg.generation()),
		provider.NewResponsesClassifier(&client, cfg.ClassifierModel, cfg.ClassifierMaxTokens, retryPolicy(cfg.Retries)),
		logger,
	)
	srv, err := NewServer(svc, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg.Addr, srv.Handler(), logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// serve runs until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mentapet server listening", "addr", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return hs.Shutdown(shutdownCtx)
}

// retryPolicy keeps the first n waits of the default policy.
func retryPolicy(n int) provider.RetryPolicy {
	if n <= 0 {
		return provider.NoRetry()
	}
	p := provider.DefaultRetryPolicy()
	p.RateLimitWaits = p.RateLimitWaits[:min(n, len(p.RateLimitWaits))]
	p.ServerErrorWaits = p.ServerErrorWaits[:min(n, len(p.ServerErrorWaits))]
	return p
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for reply generation")
	fs.StringVar(&cfg.ClassifierModel, "classifier-model", "", "OpenAI model for mood classification (default: -model)")
	fs.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature for reply generation")
	fs.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Max completion tokens for the reply (0 = provider default)")
	fs.Int64Var(&cfg.ClassifierMaxTokens, "classifier-max-tokens", cfg.ClassifierMaxTokens, "Max output tokens for classification (0 = provider default)")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Classifier retries on rate limit or server errors")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional OpenAI-compatible base URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = cfg.Model
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	return cfg, nil
}
