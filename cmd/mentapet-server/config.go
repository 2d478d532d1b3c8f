package main

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/theimaginaryfoundation/mentapet/mood"
)

type Config struct {
	Addr            string
	Model           string
	ClassifierModel string
	APIKey          string
	BaseURL         string
	LogLevel        string

	Temperature         float64
	MaxTokens           int64
	ClassifierMaxTokens int64
	Retries             int
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.ClassifierModel == "" {
		return errors.New("missing -classifier-model")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("temperature must be within [0, 2]")
	}
	if c.MaxTokens < 0 || c.ClassifierMaxTokens < 0 {
		return errors.New("token limits must be >= 0")
	}
	if c.Retries < 0 {
		return errors.New("retries must be >= 0")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func defaultConfig() Config {
	gen := mood.DefaultGenerationConfig()
	return Config{
		Addr:                ":8787",
		Model:               gen.Model,
		Temperature:         gen.Temperature,
		MaxTokens:           gen.MaxTokens,
		ClassifierMaxTokens: 200,
		Retries:             2,
		LogLevel:            "info",
	}
}

func (c Config) generation() mood.GenerationConfig {
	return mood.GenerationConfig{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, errors.New("log-level must be one of debug, info, warn, error")
	}
	return lvl, nil
}
