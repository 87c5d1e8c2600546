package policy

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// WeightStore persists learned action preferences keyed by state key.
// Unknown state keys read as all-zero weights.
type WeightStore interface {
	Weights(stateKey string) (map[Action]float64, error)
	SetWeights(stateKey string, weights map[Action]float64) error
}

// SQLiteWeights is the file-backed WeightStore used in production. Weights
// survive restarts; writers are serialized with a mutex since training only
// happens in the offline batch step, never per request.
type SQLiteWeights struct {
	mu sync.Mutex
	db *sql.DB
}

// Compile-time check that SQLiteWeights implements WeightStore.
var _ WeightStore = (*SQLiteWeights)(nil)

// OpenWeights opens (or creates) the weight database in dataDir.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func OpenWeights(dataDir string) (*SQLiteWeights, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "policy.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening weight database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging weight database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS policy_weights (
		state_key TEXT NOT NULL,
		action TEXT NOT NULL,
		weight REAL NOT NULL,
		PRIMARY KEY (state_key, action)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating policy_weights table: %w", err)
	}

	return &SQLiteWeights{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteWeights) Close() error {
	return s.db.Close()
}

// Weights returns the stored weights for a state key, with every action in
// the space present (zero when never trained).
func (s *SQLiteWeights) Weights(stateKey string) (map[Action]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT action, weight FROM policy_weights WHERE state_key = ?`, stateKey)
	if err != nil {
		return nil, fmt.Errorf("querying weights for %q: %w", stateKey, err)
	}
	defer rows.Close()

	weights := zeroWeights()
	for rows.Next() {
		var action string
		var weight float64
		if err := rows.Scan(&action, &weight); err != nil {
			return nil, fmt.Errorf("scanning weight row: %w", err)
		}
		weights[Action(action)] = weight
	}
	return weights, rows.Err()
}

// SetWeights replaces the stored weights for a state key.
func (s *SQLiteWeights) SetWeights(stateKey string, weights map[Action]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning weight transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO policy_weights (state_key, action, weight) VALUES (?, ?, ?)
		ON CONFLICT (state_key, action) DO UPDATE SET weight = excluded.weight`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing weight upsert: %w", err)
	}
	defer stmt.Close()

	for action, weight := range weights {
		if _, err := stmt.Exec(stateKey, string(action), weight); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting weight %s/%s: %w", stateKey, action, err)
		}
	}
	return tx.Commit()
}

// MemoryWeights is an in-process WeightStore for tests.
type MemoryWeights struct {
	mu      sync.Mutex
	weights map[string]map[Action]float64
}

// Compile-time check that MemoryWeights implements WeightStore.
var _ WeightStore = (*MemoryWeights)(nil)

// NewMemoryWeights creates an empty in-memory store.
func NewMemoryWeights() *MemoryWeights {
	return &MemoryWeights{weights: make(map[string]map[Action]float64)}
}

func (m *MemoryWeights) Weights(stateKey string) (map[Action]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	weights := zeroWeights()
	for action, w := range m.weights[stateKey] {
		weights[action] = w
	}
	return weights, nil
}

func (m *MemoryWeights) SetWeights(stateKey string, weights map[Action]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(map[Action]float64, len(weights))
	for action, w := range weights {
		cp[action] = w
	}
	m.weights[stateKey] = cp
	return nil
}

func zeroWeights() map[Action]float64 {
	weights := make(map[Action]float64, len(Actions()))
	for _, a := range Actions() {
		weights[a] = 0
	}
	return weights
}
