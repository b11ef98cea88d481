package persist

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/cairndns/cairndns/internal/cache"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite persists cache snapshots in a single-file SQLite database, one
// row per entry. Save replaces the whole table in one transaction.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite opens or creates the database at path and brings the schema up
// to date.
func NewSQLite(path string) (*SQLite, error) {
	// WAL mode so the checkpointer never blocks a concurrent reader.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLite{conn: conn}, nil
}

// runMigrations applies the embedded schema migrations.
func runMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: load migrations: %v", ErrPersistence, err)
	}
	drv, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("%w: migration driver: %v", ErrPersistence, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("%w: migration setup: %v", ErrPersistence, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: apply migrations: %v", ErrPersistence, err)
	}
	return nil
}

// Save replaces the persisted snapshot with entries. Entries already
// expired at now are skipped.
func (s *SQLite) Save(ctx context.Context, entries []cache.Entry, now time.Time) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin save: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("%w: wipe snapshot: %v", ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cache_entries (
			qname, qtype, qclass,
			answer_count, authority_count, additional_count,
			answers, authority, additional,
			original_ttl, remaining_ttl, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", ErrPersistence, err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		remaining := e.RemainingTTL(now)
		if remaining <= 0 {
			continue
		}

		answers, err := marshalRecords(e.Answers)
		if err != nil {
			return err
		}
		authority, err := marshalRecords(e.Authority)
		if err != nil {
			return err
		}
		additional, err := marshalRecords(e.Additional)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			e.Key.Name, e.Key.Type, e.Key.Class,
			len(e.Answers), len(e.Authority), len(e.Additional),
			answers, authority, additional,
			int64(e.OriginalTTL), int64(remaining), now.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert %s: %v", ErrPersistence, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit save: %v", ErrPersistence, err)
	}
	return nil
}

// Load reads the snapshot back, dropping rows whose TTL ran out while
// stored. A row that no longer decodes fails the whole load with
// ErrCorruptData; callers start with an empty cache.
func (s *SQLite) Load(ctx context.Context, now time.Time) ([]cache.Entry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT qname, qtype, qclass,
		       answer_count, authority_count, additional_count,
		       answers, authority, additional,
		       original_ttl, remaining_ttl, saved_at
		FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("%w: query snapshot: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var entries []cache.Entry
	for rows.Next() {
		var (
			qname                                  string
			qtype, qclass                          uint16
			answerCount, authCount, addCount       int
			answersBlob, authorityBlob, additional []byte
			originalTTL, remainingTTL, savedAtNano int64
		)
		err := rows.Scan(&qname, &qtype, &qclass,
			&answerCount, &authCount, &addCount,
			&answersBlob, &authorityBlob, &additional,
			&originalTTL, &remainingTTL, &savedAtNano)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrCorruptData, err)
		}

		savedAt := time.Unix(0, savedAtNano)
		expiresAt := savedAt.Add(time.Duration(remainingTTL))
		if !expiresAt.After(now) {
			continue
		}

		answers, err := unmarshalRecords(answersBlob, answerCount)
		if err != nil {
			return nil, err
		}
		authority, err := unmarshalRecords(authorityBlob, authCount)
		if err != nil {
			return nil, err
		}
		additionalRecords, err := unmarshalRecords(additional, addCount)
		if err != nil {
			return nil, err
		}

		entries = append(entries, cache.Entry{
			Key:         cache.NewKey(qname, qtype, qclass),
			Answers:     answers,
			Authority:   authority,
			Additional:  additionalRecords,
			StoredAt:    expiresAt.Add(-time.Duration(originalTTL)),
			OriginalTTL: time.Duration(originalTTL),
			ExpiresAt:   expiresAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %v", ErrPersistence, err)
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
