package forwarder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PostgresStore persists the list in the forwarders table. Load reads the
// full list in position order; Save rewrites it atomically in one
// transaction.
type PostgresStore struct {
	DB *sql.DB
}

func (s *PostgresStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT url, usage_limited, selected FROM forwarders ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query forwarders: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.URL, &e.UsageLimited, &e.Selected); err != nil {
			return nil, fmt.Errorf("scan forwarder: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM forwarders`); err != nil {
		return fmt.Errorf("clear forwarders: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO forwarders (position, url, usage_limited, selected, updated_at) VALUES ($1,$2,$3,$4,NOW())`,
			i, e.URL, e.UsageLimited, e.Selected); err != nil {
			return fmt.Errorf("insert forwarder %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// MemoryStore is an in-process Store used by tests and by deployments that
// accept losing failover state on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	// FailLoad/FailSave simulate I/O failures in tests.
	FailLoad error
	FailSave error
}

func NewMemoryStore(entries ...Entry) *MemoryStore {
	s := &MemoryStore{}
	s.entries = append(s.entries, entries...)
	return s
}

func (s *MemoryStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLoad != nil {
		return nil, s.FailLoad
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return s.FailSave
	}
	s.entries = make([]Entry, len(entries))
	copy(s.entries, entries)
	return nil
}
