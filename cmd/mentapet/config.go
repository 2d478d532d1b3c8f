package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	ServerURL   string
	PetVariant  string
	JournalPath string
	OutPath     string
	NoJournal   bool
	Last        bool
	History     int
	Pretty      bool
	Timeout     time.Duration
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("missing -server")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return errors.New("-server must be an http(s) URL")
	}
	if !c.NoJournal && c.JournalPath == "" {
		return errors.New("missing -journal (or pass -no-journal)")
	}
	if (c.Last || c.History > 0) && c.NoJournal {
		return errors.New("-last and -history need the journal")
	}
	if c.History < 0 {
		return errors.New("history must be >= 0")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		ServerURL:   "http://localhost:8787",
		JournalPath: defaultJournalPath(),
		Pretty:      true,
		Timeout:     60 * time.Second,
	}
}

func defaultJournalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.FromSlash(".mentapet/journal.db")
	}
	return filepath.Join(dir, "mentapet", "journal.db")
}
