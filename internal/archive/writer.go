package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/connection"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/metrics"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/queue"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/router"
)

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batch writer settings.
type Config struct {
	Table         string
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // envelopes held before new ones are dropped
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Table:         "umsg_messages",
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

type messageRow struct {
	ID          string
	ReceivedAt  time.Time
	MessageType *string
	Payload     []byte
}

// Writer batches envelopes into the archive table.
type Writer struct {
	cfg     Config
	db      DB
	metrics *metrics.Metrics
	logger  *slog.Logger

	input *queue.Queue[connection.Envelope]

	batch   []messageRow
	batchMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a Writer. The table must already exist; see EnsureSchema.
func NewWriter(cfg Config, db DB, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Writer{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger.With("component", "archive", "table", cfg.Table),
		input:   queue.New[connection.Envelope](cfg.BufferSize),
		batch:   make([]messageRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the archive table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	_, err := w.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           UUID PRIMARY KEY,
			received_at  TIMESTAMPTZ NOT NULL,
			message_type TEXT,
			payload      BYTEA NOT NULL
		)`, pgx.Identifier{w.cfg.Table}.Sanitize()))
	if err != nil {
		return fmt.Errorf("create table %s: %w", w.cfg.Table, err)
	}
	return nil
}

// Start consumes envelopes from input, normally a bus subscription to
// events.TopicMessage, until ctx is done or Stop is called.
func (w *Writer) Start(ctx context.Context, input <-chan any) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(3)
	go w.forwardLoop(input)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Add buffers one envelope. It returns false if the buffer is full or closed.
func (w *Writer) Add(env connection.Envelope) bool {
	if w.cfg.BufferSize > 0 && w.input.Len() >= w.cfg.BufferSize {
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
		return false
	}
	return w.input.Push(env)
}

// Stop shuts down the loops and flushes what is buffered using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
		return ctx.Err()
	}

	// Envelopes still queued when the consumer exited.
	for _, env := range w.input.Drain(0) {
		w.appendRow(transform(env))
	}
	w.flush(ctx)

	w.logger.Info("archive writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current statistics.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *Writer) forwardLoop(input <-chan any) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case payload, ok := <-input:
			if !ok {
				return
			}
			if env, ok := payload.(connection.Envelope); ok {
				w.Add(env)
			}
		}
	}
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		env, ok := w.input.Pop()
		if !ok || w.ctx.Err() != nil {
			if ok {
				w.appendRow(transform(env))
			}
			return
		}
		if w.appendRow(transform(env)) {
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// appendRow adds a row and reports whether the batch is full.
func (w *Writer) appendRow(row messageRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(env connection.Envelope) messageRow {
	row := messageRow{
		ID:         env.ID.String(),
		ReceivedAt: env.ReceivedAt,
		Payload:    env.Data,
	}
	if t, err := router.MessageType(env.Data); err == nil {
		row.MessageType = &t
	}
	return row
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]messageRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed, rows requeued", "error", err, "count", len(batch))
		w.metrics.ArchiveFailed()
		w.requeue(batch)
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.ArchiveWritten(inserted)

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// requeue puts a failed batch back ahead of newer rows. Retrying is safe
// because inserts ignore existing ids. Rows past BufferSize are dropped.
func (w *Writer) requeue(rows []messageRow) {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	w.stats.Errors++
	merged := append(rows, w.batch...)
	if limit := w.cfg.BufferSize; limit > 0 && len(merged) > limit {
		w.stats.Dropped += int64(len(merged) - limit)
		merged = merged[:limit]
	}
	w.batch = merged
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []messageRow) (conflicts int, err error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, received_at, message_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, pgx.Identifier{w.cfg.Table}.Sanitize())

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(sql, r.ID, r.ReceivedAt, r.MessageType, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
