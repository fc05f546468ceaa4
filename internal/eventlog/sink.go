// Package eventlog appends streaming events to a SQL table. A single writer
// goroutine owns the connection; Publish never blocks the streaming manager
// and drops events when the queue is full.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"texstream/internal/common/fsutil"
	"texstream/internal/streaming"
)

const (
	defaultBuffer        = 4096
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

// Config selects the backend. Driver is "sqlite" (DSN is a file path) or
// "postgres"/"pgx" (DSN is a connection string).
type Config struct {
	Driver        string
	DSN           string
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
	Logger        zerolog.Logger
}

// Record is one stored event.
type Record struct {
	ID      int64          `json:"id"`
	At      time.Time      `json:"at"`
	Name    string         `json:"name"`
	Texture string         `json:"texture,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type req struct {
	rec   Record
	flush chan struct{}
}

// Sink is a streaming.EventPublisher backed by database/sql.
type Sink struct {
	db       *sql.DB
	postgres bool
	cfg      Config
	log      zerolog.Logger

	// ch is never closed; done stops the writer.
	ch      chan req
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	written atomic.Int64
}

var _ streaming.EventPublisher = (*Sink)(nil)

// Open connects, creates the schema if needed and starts the writer.
func Open(cfg Config) (*Sink, error) {
	// Apply defaults if unset
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("empty event sink dsn")
	}

	var (
		driver   string
		dsn      = cfg.DSN
		postgres bool
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		driver = "sqlite"
		p, err := fsutil.ExpandHome(dsn)
		if err != nil {
			return nil, err
		}
		if err := fsutil.EnsureParentDir(p); err != nil {
			return nil, err
		}
		dsn = p
	case "postgres", "postgresql", "pgx":
		driver = "pgx"
		postgres = true
	default:
		return nil, errors.Errorf("unsupported event sink driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s event sink", driver)
	}
	if !postgres {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if err := initPragmas(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := initSchema(db, postgres); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Sink{
		db:       db,
		postgres: postgres,
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "eventlog").Str("driver", driver).Logger(),
		ch:       make(chan req, cfg.Buffer),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.Wrapf(err, "exec %s", p)
		}
	}
	return nil
}

func initSchema(db *sql.DB, postgres bool) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS streaming_events (
			id ` + id + `,
			at_unix_ms BIGINT NOT NULL,
			name TEXT NOT NULL,
			texture TEXT NOT NULL,
			fields TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS streaming_events_texture ON streaming_events(texture);`,
		`CREATE INDEX IF NOT EXISTS streaming_events_name ON streaming_events(name);`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			return errors.Wrap(err, "create event schema")
		}
	}
	return nil
}

// Publish queues e. It never blocks: events are dropped when the writer
// falls behind or after Close.
func (s *Sink) Publish(e streaming.Event) {
	if s == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- req{rec: Record{At: time.Now(), Name: e.Name, Texture: e.Texture, Fields: e.Fields}}:
	default:
		s.dropped.Add(1)
	}
}

// Flush waits until everything queued before the call is committed.
// It returns nil once the sink is closed.
func (s *Sink) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	select {
	case <-s.done:
		return nil
	case s.ch <- req{flush: flushed}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-flushed:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped counts events lost to a full queue.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Written counts committed events.
func (s *Sink) Written() int64 { return s.written.Load() }

// Close drains the queue and closes the database.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Sink) loop() {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, s.cfg.BatchSize)
	write := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insert(context.Background(), batch); err != nil {
			s.log.Error().Err(err).Int("events", len(batch)).Msg("event batch lost")
		} else {
			s.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	take := func(r req) {
		if r.flush != nil {
			write()
			close(r.flush)
			return
		}
		batch = append(batch, r.rec)
		if len(batch) >= s.cfg.BatchSize {
			write()
		}
	}

	for {
		select {
		case r := <-s.ch:
			take(r)
		case <-ticker.C:
			write()
		case <-s.done:
			for {
				select {
				case r := <-s.ch:
					take(r)
				default:
					write()
					return
				}
			}
		}
	}
}

func (s *Sink) insert(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO streaming_events(at_unix_ms,name,texture,fields) VALUES(?,?,?,?)`))
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()
	for _, r := range recs {
		fields := "{}"
		if len(r.Fields) > 0 {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				s.log.Warn().Err(err).Str("event", r.Name).Msg("event fields not encodable")
			} else {
				fields = string(b)
			}
		}
		if _, err := stmt.ExecContext(ctx, r.At.UnixMilli(), r.Name, r.Texture, fields); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "insert event")
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Query filters Recent. Zero values match everything.
type Query struct {
	Name    string
	Texture string
	Limit   int
}

// Recent returns the newest committed events first.
func (s *Sink) Recent(ctx context.Context, q Query) ([]Record, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var (
		where []string
		args  []any
	)
	if q.Name != "" {
		where = append(where, "name = ?")
		args = append(args, q.Name)
	}
	if q.Texture != "" {
		where = append(where, "texture = ?")
		args = append(args, q.Texture)
	}
	query := `SELECT id, at_unix_ms, name, texture, fields FROM streaming_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			ms     int64
			fields string
		)
		if err := rows.Scan(&r.ID, &ms, &r.Name, &r.Texture, &fields); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		r.At = time.UnixMilli(ms)
		if fields != "" && fields != "{}" {
			if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
				return nil, errors.Wrapf(err, "decode fields of event %d", r.ID)
			}
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate events")
}

// rebind turns ? placeholders into $n for postgres.
func (s *Sink) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var (
		b strings.Builder
		n int
	)
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
