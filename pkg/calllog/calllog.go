package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/norasector/p25scanner/pkg/trunking"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const (
	defaultQueueSize     = 256
	defaultBatchSize     = 32
	defaultFlushInterval = 2 * time.Second
)

// Call is one followed voice call.
type Call struct {
	ID        uuid.UUID
	Talkgroup uint16
	Unit      bool
	Target    uint32
	Source    uint32
	Frequency int
	Start     time.Time
	End       time.Time
	Encrypted bool
	Emergency bool
}

func (c Call) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

func NewCall(g trunking.Grant, start time.Time) Call {
	return Call{
		ID:        uuid.New(),
		Talkgroup: g.Talkgroup,
		Unit:      g.Unit,
		Target:    g.Target,
		Source:    g.Source,
		Frequency: g.Frequency,
		Start:     start,
		Encrypted: g.Encrypted,
		Emergency: g.Emergency,
	}
}

type Option func(w *Writer)

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

func WithQueueSize(n int) Option {
	return func(w *Writer) {
		w.queue = make(chan Call, n)
	}
}

// Writer stores calls in SQLite from a background loop. Enqueue never blocks; calls
// that do not fit in the queue are dropped and counted.
type Writer struct {
	db      *sql.DB
	queue   chan Call
	logger  zerolog.Logger
	dropped atomic.Uint64
}

func Open(path string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("calllog: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("calllog: open %s: %w", path, err)
	}
	if _, err := db.Exec(`pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("calllog: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("calllog: schema: %w", err)
	}

	w := &Writer{
		db:     db,
		queue:  make(chan Call, defaultQueueSize),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

const schema = `create table if not exists calls (
	id text primary key,
	talkgroup integer not null,
	unit integer not null,
	target integer not null,
	source integer not null,
	frequency integer not null,
	start_ms integer not null,
	end_ms integer not null,
	encrypted integer not null,
	emergency integer not null
);
create index if not exists calls_start on calls(start_ms);
create index if not exists calls_talkgroup on calls(talkgroup, start_ms);`

func (w *Writer) Enqueue(c Call) bool {
	select {
	case w.queue <- c:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Run writes queued calls in batches until ctx is done, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	batch := make([]Call, 0, defaultBatchSize)
	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for len(w.queue) > 0 {
				batch = append(batch, <-w.queue)
			}
			return w.flush(batch)
		case c := <-w.queue:
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				if err := w.flush(batch); err != nil {
					w.logger.Error().Err(err).Int("calls", len(batch)).Msg("error writing call log")
				}
				batch = batch[:0]
			}
		case <-ticker.C:
			if err := w.flush(batch); err != nil {
				w.logger.Error().Err(err).Int("calls", len(batch)).Msg("error writing call log")
			}
			batch = batch[:0]
		}
	}
}

func (w *Writer) flush(batch []Call) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("calllog: begin: %w", err)
	}
	stmt, err := tx.Prepare(`insert or replace into calls(id, talkgroup, unit, target, source, frequency, start_ms, end_ms, encrypted, emergency) values(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("calllog: prepare: %w", err)
	}
	defer stmt.Close()
	for _, c := range batch {
		if _, err := stmt.Exec(
			c.ID.String(),
			c.Talkgroup,
			boolToInt(c.Unit),
			c.Target,
			c.Source,
			c.Frequency,
			c.Start.UnixMilli(),
			c.End.UnixMilli(),
			boolToInt(c.Encrypted),
			boolToInt(c.Emergency),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("calllog: insert %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("calllog: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit calls, newest first.
func (w *Writer) Recent(ctx context.Context, limit int) ([]Call, error) {
	rows, err := w.db.QueryContext(ctx, `select id, talkgroup, unit, target, source, frequency, start_ms, end_ms, encrypted, emergency
		from calls order by start_ms desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("calllog: query: %w", err)
	}
	defer rows.Close()

	var ret []Call
	for rows.Next() {
		var (
			c                          Call
			id                         string
			unit, encrypted, emergency int
			start, end                 int64
		)
		if err := rows.Scan(&id, &c.Talkgroup, &unit, &c.Target, &c.Source, &c.Frequency, &start, &end, &encrypted, &emergency); err != nil {
			return nil, fmt.Errorf("calllog: scan: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("calllog: bad id %q: %w", id, err)
		}
		c.Unit = unit != 0
		c.Encrypted = encrypted != 0
		c.Emergency = emergency != 0
		c.Start = time.UnixMilli(start)
		c.End = time.UnixMilli(end)
		ret = append(ret, c)
	}
	return ret, rows.Err()
}

func (w *Writer) Close() error {
	return w.db.Close()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
