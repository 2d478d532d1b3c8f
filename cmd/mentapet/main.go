package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/mentapet/mood"
	"github.com/theimaginaryfoundation/mentapet/mood/fileutils"
	"github.com/theimaginaryfoundation/mentapet/mood/journal"
)

const careNotice = "If you are in danger or thinking about ending your life, please contact local emergency services or a crisis line now. You deserve support from a real person."

const maxStdinBytes = 64 << 10

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, flag.CommandLine.Args(), os.Stdin, os.Stdout, os.Stderr))
}

// outcomeFile is what -out writes.
type outcomeFile struct {
	CreatedAt  string       `json:"created_at"`
	PetVariant string       `json:"pet_variant"`
	Source     mood.Source  `json:"source"`
	Outcome    mood.Outcome `json:"outcome"`
	Error      string       `json:"error,omitempty"`
}

func run(ctx context.Context, cfg Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	readOnly := cfg.Last || cfg.History > 0
	if readOnly && !fileutils.FileExists(cfg.JournalPath) {
		if cfg.Last {
			fmt.Fprintln(stdout, mood.Calm)
		}
		return 0
	}

	var store *journal.Store
	if !cfg.NoJournal {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			fmt.Fprintln(stderr, fmt.Errorf("mkdir journal dir: %w", err).Error())
			return 2
		}
		s, err := journal.Open(cfg.JournalPath)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		defer s.Close()
		store = s
	}

	if cfg.Last {
		m, err := store.LastMood(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintln(stdout, m)
		return 0
	}
	if cfg.History > 0 {
		if err := printHistory(ctx, stdout, store, cfg.History); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	}

	text, err := readText(args, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	client := mood.NewClient(cfg.ServerURL, mood.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	care := mood.CareEscalatorFunc(func(context.Context) {
		fmt.Fprintln(stderr, careNotice)
	})
	p := mood.NewPipeline(client, care)

	pr := &replyPrinter{w: stdout}
	res, err := p.Run(ctx, text, cfg.PetVariant, pr.delta)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		if errors.Is(err, mood.ErrEmptyInput) {
			return 2
		}
		return 1
	}
	if !pr.printed {
		fmt.Fprint(stdout, res.Reply)
	}
	fmt.Fprintln(stdout)
	printSummary(stdout, res)
	if res.Err != nil {
		fmt.Fprintln(stderr, "service unavailable, used offline reply:", res.Err.Error())
	}

	variant := mood.Request{PetVariant: cfg.PetVariant}.Variant()
	if store != nil {
		if _, err := store.Record(ctx, variant, res); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
	}
	if cfg.OutPath != "" {
		f := outcomeFile{
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			PetVariant: variant,
			Source:     res.Source,
			Outcome:    res.Outcome,
		}
		if res.Err != nil {
			f.Error = res.Err.Error()
		}
		if err := fileutils.WriteJSONFileAtomic(cfg.OutPath, f, cfg.Pretty, true); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
	}
	return 0
}

// replyPrinter writes only the newly arrived suffix of a cumulative reply.
type replyPrinter struct {
	w       io.Writer
	shown   string
	printed bool
}

func (p *replyPrinter) delta(reply string) {
	suffix, ok := strings.CutPrefix(reply, p.shown)
	if !ok || suffix == "" {
		return
	}
	fmt.Fprint(p.w, suffix)
	p.shown = reply
	p.printed = true
}

func printSummary(w io.Writer, res mood.Result) {
	fmt.Fprintf(w, "mood: %s  risk: %t  via: %s\n", res.Mood, res.Risk, res.Source)
	for _, a := range res.Actions {
		fmt.Fprintf(w, "  - %s\n", a)
	}
}

func printHistory(ctx context.Context, w io.Writer, store *journal.Store, limit int) error {
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-8s risk=%-5t %-8s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Mood, e.Risk, e.Source, e.PetVariant)
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	parts := make([]string, 0, len(mood.Moods))
	for _, m := range mood.Moods {
		parts = append(parts, fmt.Sprintf("%s=%d", m, counts[m]))
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
	return nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return "", mood.ErrEmptyInput
		}
		return text, nil
	}
	if stdin == nil {
		return "", mood.ErrEmptyInput
	}
	b, err := io.ReadAll(io.LimitReader(stdin, maxStdinBytes))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", mood.ErrEmptyInput
	}
	return text, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Base URL of the mentapet server")
	fs.StringVar(&cfg.PetVariant, "pet", "", "Pet variant voicing the reply (default: nova)")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "Path to the SQLite mood journal")
	fs.StringVar(&cfg.OutPath, "out", "", "Optional path to write the outcome JSON")
	fs.BoolVar(&cfg.NoJournal, "no-journal", false, "Do not read or write the mood journal")
	fs.BoolVar(&cfg.Last, "last", false, "Print the last recorded mood and exit")
	fs.IntVar(&cfg.History, "history", 0, "Print the N most recent journal entries and mood totals, then exit")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print -out JSON")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall HTTP timeout per analysis (0 disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	cfg.PetVariant = strings.TrimSpace(cfg.PetVariant)
	if cfg.JournalPath != "" {
		cfg.JournalPath = filepath.Clean(cfg.JournalPath)
	}
	if cfg.OutPath != "" {
		cfg.OutPath = filepath.Clean(cfg.OutPath)
	}
	return cfg, nil
}
