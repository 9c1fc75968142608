// Package store provides the persistent per-guild queue store backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/domain/track"
)

// ErrStore marks every persistence I/O failure.
var ErrStore = errors.New("store error")

// Config represents queue store configuration.
type Config struct {
	Path        string        // Database file path
	BusyTimeout time.Duration // SQLite busy timeout
}

// Store is the persistent, position-ordered collection of pending tracks per guild.
// Mutations for one guild are serialized; different guilds never block one another
// beyond SQLite's own write lock.
type Store struct {
	db *sql.DB

	mu         sync.Mutex
	guildLocks map[string]*sync.Mutex
}

const schema = `CREATE TABLE IF NOT EXISTS queue_entries (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id         TEXT    NOT NULL,
	title            TEXT    NOT NULL,
	canonical_url    TEXT    NOT NULL,
	thumbnail_url    TEXT,
	duration_seconds REAL,
	artists          TEXT    NOT NULL DEFAULT '',
	platform         TEXT    NOT NULL DEFAULT '',
	requester_id     TEXT    NOT NULL DEFAULT '',
	requester_name   TEXT    NOT NULL,
	notify_target_id TEXT    NOT NULL,
	position         INTEGER NOT NULL,
	added_at         INTEGER NOT NULL
)`

const positionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_entries_guild_position
	ON queue_entries (guild_id, position)`

// Open opens (creating if needed) the queue database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	_ = sqlite3.SQLiteDriver{}

	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, markStore(err, "failed to create database directory")
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_txlock=immediate",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, markStore(err, "failed to open database")
	}
	db.SetMaxOpenConns(4)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(initCtx, nil)
	if err != nil {
		db.Close()
		return nil, markStore(err, "failed to begin schema transaction")
	}
	defer tx.Rollback()

	for _, q := range []string{schema, positionIndex} {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			db.Close()
			return nil, markStore(err, "failed to apply schema")
		}
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, markStore(err, "failed to commit schema")
	}

	zlog.Info().Msgf("queue store opened: path=%s", cfg.Path)
	return &Store{
		db:         db,
		guildLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// lockGuild acquires the per-guild mutation lock and returns its release func.
func (s *Store) lockGuild(guildID string) func() {
	s.mu.Lock()
	l, ok := s.guildLocks[guildID]
	if !ok {
		l = &sync.Mutex{}
		s.guildLocks[guildID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Enqueue appends an entry at the tail of its guild queue.
// The returned entry carries the assigned id and position.
func (s *Store) Enqueue(ctx context.Context, e track.QueueEntry) (track.QueueEntry, error) {
	unlock := s.lockGuild(e.GuildID)
	defer unlock()

	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var maxPos int64
		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) FROM queue_entries WHERE guild_id = ?`, e.GuildID)
		if err := row.Scan(&maxPos); err != nil {
			return errors.Wrap(err, "failed to read max position")
		}
		e.Position = maxPos + 1

		res, err := tx.ExecContext(ctx,
			`INSERT INTO queue_entries
				(guild_id, title, canonical_url, thumbnail_url, duration_seconds, artists, platform,
				 requester_id, requester_name, notify_target_id, position, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.GuildID, e.Track.Title, e.Track.CanonicalURL,
			nullString(e.Track.ThumbnailURL), nullSeconds(e.Track.Duration),
			joinArtists(e.Track.Artists), e.Track.Platform,
			e.Requester.UserID, e.Requester.Name, e.Requester.NotifyTargetID, e.Position, e.AddedAt.UnixMilli())
		if err != nil {
			return errors.Wrap(err, "failed to insert entry")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read inserted id")
		}
		e.ID = id
		return nil
	})
	if err != nil {
		return track.QueueEntry{}, markStore(err, "enqueue failed")
	}

	zlog.Debug().Msgf("store: enqueued guild=%s id=%d position=%d title=%s", e.GuildID, e.ID, e.Position, e.Track.Title)
	return e, nil
}

// DequeueFront removes and returns the minimum-position entry.
// It returns nil without error when the queue is empty.
func (s *Store) DequeueFront(ctx context.Context, guildID string) (*track.QueueEntry, error) {
	unlock := s.lockGuild(guildID)
	defer unlock()

	var entry *track.QueueEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectColumns+
			` WHERE guild_id = ? ORDER BY position ASC LIMIT 1`, guildID)
		e, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to select front entry")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, e.ID); err != nil {
			return errors.Wrap(err, "failed to delete front entry")
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, markStore(err, "dequeue failed")
	}
	return entry, nil
}

// Peek returns up to n entries in position order without mutating the queue.
// A non-positive n returns every entry.
func (s *Store) Peek(ctx context.Context, guildID string, n int) ([]track.QueueEntry, error) {
	q := selectColumns + ` WHERE guild_id = ? ORDER BY position ASC`
	args := []any{guildID}
	if n > 0 {
		q += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, markStore(err, "peek failed")
	}
	defer rows.Close()

	entries := make([]track.QueueEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, markStore(err, "failed to scan entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, markStore(err, "peek failed")
	}
	return entries, nil
}

// Count returns the number of pending entries for a guild.
func (s *Store) Count(ctx context.Context, guildID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE guild_id = ?`, guildID).Scan(&n)
	if err != nil {
		return 0, markStore(err, "count failed")
	}
	return n, nil
}

// RemoveByID removes a specific entry. Absent ids are a no-op.
// It reports whether an entry was removed.
func (s *Store) RemoveByID(ctx context.Context, guildID string, id int64) (bool, error) {
	unlock := s.lockGuild(guildID)
	defer unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE guild_id = ? AND id = ?`, guildID, id)
	if err != nil {
		return false, markStore(err, "remove failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, markStore(err, "remove failed")
	}
	return n > 0, nil
}

// Shuffle randomly permutes the guild queue and reassigns positions 1..N.
func (s *Store) Shuffle(ctx context.Context, guildID string) error {
	unlock := s.lockGuild(guildID)
	defer unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM queue_entries WHERE guild_id = ? ORDER BY position ASC`, guildID)
		if err != nil {
			return errors.Wrap(err, "failed to list ids")
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return errors.Wrap(err, "failed to scan id")
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "failed to list ids")
		}

		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})

		// Park positions on negative ids so the unique index holds during reassignment.
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_entries SET position = -id WHERE guild_id = ?`, guildID); err != nil {
			return errors.Wrap(err, "failed to park positions")
		}
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE queue_entries SET position = ? WHERE id = ?`, i+1, id); err != nil {
				return errors.Wrap(err, "failed to assign position")
			}
		}
		return nil
	})
	if err != nil {
		return markStore(err, "shuffle failed")
	}

	zlog.Debug().Msgf("store: shuffled guild=%s", guildID)
	return nil
}

// Clear removes all entries for a guild.
func (s *Store) Clear(ctx context.Context, guildID string) error {
	unlock := s.lockGuild(guildID)
	defer unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE guild_id = ?`, guildID); err != nil {
		return markStore(err, "clear failed")
	}
	return nil
}

// Guilds returns the ids of guilds that have pending entries.
func (s *Store) Guilds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT guild_id FROM queue_entries ORDER BY guild_id`)
	if err != nil {
		return nil, markStore(err, "failed to list guilds")
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, markStore(err, "failed to scan guild")
		}
		guilds = append(guilds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, markStore(err, "failed to list guilds")
	}
	return guilds, nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// markStore wraps err with msg and marks it as ErrStore.
func markStore(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrStore)
}
