// Package journal keeps the caller-side record of analyses: the last mood
// and a short history. The analysis pipeline itself holds no such state.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/theimaginaryfoundation/mentapet/mood"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	entry_id     TEXT PRIMARY KEY,
	created_at   TEXT NOT NULL,
	source       TEXT NOT NULL,
	pet_variant  TEXT NOT NULL,
	mood         TEXT NOT NULL,
	risk         INTEGER NOT NULL,
	actions_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS entries_created_at ON entries(created_at);
`

// ErrEmpty is returned by Last when nothing has been recorded.
var ErrEmpty = errors.New("journal is empty")

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded analysis. The input text and reply are not stored.
type Entry struct {
	ID         string
	CreatedAt  time.Time
	Source     mood.Source
	PetVariant string
	Mood       mood.Mood
	Risk       bool
	Actions    []string
}

// Store persists entries in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the result of one pipeline run.
func (s *Store) Record(ctx context.Context, petVariant string, res mood.Result) (Entry, error) {
	actions := res.Actions
	if actions == nil {
		actions = []string{}
	}
	e := Entry{
		ID:         uuid.New().String(),
		CreatedAt:  s.now().UTC(),
		Source:     res.Source,
		PetVariant: petVariant,
		Mood:       mood.ParseMood(string(res.Mood)),
		Risk:       res.Risk,
		Actions:    actions,
	}
	actionsJSON, err := json.Marshal(e.Actions)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal actions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (entry_id, created_at, source, pet_variant, mood, risk, actions_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.Format(timeLayout), string(e.Source), e.PetVariant, string(e.Mood), boolToInt(e.Risk), string(actionsJSON),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// Last returns the most recent entry.
func (s *Store) Last(ctx context.Context) (Entry, error) {
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrEmpty
	}
	return entries[0], nil
}

// LastMood returns the most recent mood, or Calm when the journal is empty.
func (s *Store) LastMood(ctx context.Context) (mood.Mood, error) {
	e, err := s.Last(ctx)
	if errors.Is(err, ErrEmpty) {
		return mood.Calm, nil
	}
	if err != nil {
		return "", err
	}
	return e.Mood, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, created_at, source, pet_variant, mood, risk, actions_json
		 FROM entries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			createdAt   string
			source      string
			moodLabel   string
			risk        int
			actionsJSON string
		)
		if err := rows.Scan(&e.ID, &createdAt, &source, &e.PetVariant, &moodLabel, &risk, &actionsJSON); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.Source = mood.Source(source)
		e.Mood = mood.ParseMood(moodLabel)
		e.Risk = risk != 0
		if err := json.Unmarshal([]byte(actionsJSON), &e.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts tallies entries per mood.
func (s *Store) Counts(ctx context.Context) (map[mood.Mood]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mood, COUNT(*) FROM entries GROUP BY mood`)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[mood.Mood]int, len(mood.Moods))
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[mood.ParseMood(label)] += n
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
