// Package memory is the episode store: one row per finished workflow run,
// queryable by similarity so planning prompts can cite past outcomes.
package memory

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultSimilarityCutoff is the minimum Jaccard score for FindSimilar.
const DefaultSimilarityCutoff = 0.6

// Episode records one finished workflow run.
type Episode struct {
	ID        string
	Goal      string
	Workflow  string
	Status    string
	Summary   string
	CreatedAt time.Time
}

// Store is the sqlite-backed episode store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the episode database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		workflow TEXT NOT NULL,
		status TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate episode store: %w", err)
	}
	return nil
}

// Add stores an episode, assigning an ID when none is set.
func (s *Store) Add(ep *Episode) error {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO episodes (id, goal, workflow, status, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Goal, ep.Workflow, ep.Status, ep.Summary, ep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert episode: %w", err)
	}
	return nil
}

// Recent returns up to n episodes, newest first.
func (s *Store) Recent(n int) ([]*Episode, error) {
	rows, err := s.db.Query(
		`SELECT id, goal, workflow, status, summary, created_at
		 FROM episodes ORDER BY created_at DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.ID, &ep.Goal, &ep.Workflow, &ep.Status, &ep.Summary, &ep.CreatedAt); err != nil {
			return nil, err
		}
		episodes = append(episodes, &ep)
	}
	return episodes, rows.Err()
}

// FindSimilar returns the stored episode whose goal has the highest token
// overlap with goal, or nil when the best score is below cutoff (the
// default cutoff when cutoff <= 0).
func (s *Store) FindSimilar(goal string, cutoff float64) (*Episode, error) {
	if cutoff <= 0 {
		cutoff = DefaultSimilarityCutoff
	}
	goalTokens := tokenize(goal)

	rows, err := s.db.Query(`SELECT id, goal, workflow, status, summary, created_at FROM episodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var best *Episode
	bestScore := 0.0
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.ID, &ep.Goal, &ep.Workflow, &ep.Status, &ep.Summary, &ep.CreatedAt); err != nil {
			return nil, err
		}
		score := jaccard(goalTokens, tokenize(ep.Goal))
		if score > bestScore {
			bestScore = score
			candidate := ep
			best = &candidate
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if bestScore < cutoff {
		return nil, nil
	}
	return best, nil
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		tokens[tok] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
