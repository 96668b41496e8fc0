package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/connection"
)

// fakeDB records batches; ids listed in existing report a conflict.
type fakeDB struct {
	mu       sync.Mutex
	execs    []string
	batches  [][]pgx.QueuedQuery
	existing map[string]bool
	batchErr error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	queued := make([]pgx.QueuedQuery, len(b.QueuedQueries))
	for i, q := range b.QueuedQueries {
		queued[i] = *q
	}
	f.batches = append(f.batches, queued)
	return &fakeResults{db: f, queries: queued}
}

func (f *fakeDB) Rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeResults struct {
	db      *fakeDB
	queries []pgx.QueuedQuery
	next    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.db.batchErr != nil {
		return pgconn.CommandTag{}, r.db.batchErr
	}
	q := r.queries[r.next]
	r.next++
	if r.db.existing[q.Arguments[0].(string)] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func env(data string) connection.Envelope {
	return connection.Envelope{ID: uuid.New(), Data: []byte(data), ReceivedAt: time.Now()}
}

func testConfig() Config {
	return Config{
		Table:         "umsg_messages",
		BatchSize:     3,
		FlushInterval: time.Hour,
		BufferSize:    100,
	}
}

func TestTransform(t *testing.T) {
	receivedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	e := connection.Envelope{ID: uuid.New(), Data: []byte(`{"type":"message","_msg":"hi"}`), ReceivedAt: receivedAt}

	row := transform(e)

	if row.ID != e.ID.String() {
		t.Errorf("ID = %s, want %s", row.ID, e.ID)
	}
	if !row.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", row.ReceivedAt, receivedAt)
	}
	if row.MessageType == nil || *row.MessageType != "message" {
		t.Errorf("MessageType = %v, want message", row.MessageType)
	}
	if string(row.Payload) != string(e.Data) {
		t.Errorf("Payload = %s, want %s", row.Payload, e.Data)
	}
}

func TestTransform_Untyped(t *testing.T) {
	row := transform(env("plain text"))
	if row.MessageType != nil {
		t.Errorf("MessageType = %q, want nil", *row.MessageType)
	}
}

func TestWriter_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(testConfig(), db, nil, nil)

	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], `CREATE TABLE IF NOT EXISTS "umsg_messages"`) {
		t.Errorf("execs = %v", db.execs)
	}
}

func TestWriter_FlushesFullBatch(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(testConfig(), db, nil, nil)

	input := make(chan any, 8)
	if err := w.Start(context.Background(), input); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		input <- env(`{"type":"message"}`)
	}
	input <- "ignored"

	deadline := time.Now().Add(time.Second)
	for db.Rows() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if db.Rows() != 3 {
		t.Fatalf("rows written = %d, want 3", db.Rows())
	}

	q := db.batches[0][0]
	if !strings.Contains(q.SQL, `INSERT INTO "umsg_messages"`) || !strings.Contains(q.SQL, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("SQL = %s", q.SQL)
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if s := w.Stats(); s.Inserts != 3 || s.Flushes != 1 {
		t.Errorf("Stats() = %+v, want 3 inserts in 1 flush", s)
	}
}

func TestWriter_StopFlushesPartialBatch(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(testConfig(), db, nil, nil)
	if err := w.Start(context.Background(), make(chan any)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	w.Add(env("a"))
	w.Add(env("b"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if db.Rows() != 2 {
		t.Errorf("rows written = %d, want 2", db.Rows())
	}
}

func TestWriter_CountsConflicts(t *testing.T) {
	dup := env("dup")
	db := &fakeDB{existing: map[string]bool{dup.ID.String(): true}}
	w := NewWriter(testConfig(), db, nil, nil)

	w.appendRow(transform(dup))
	w.appendRow(transform(env("new")))
	w.flush(context.Background())

	s := w.Stats()
	if s.Inserts != 1 || s.Conflicts != 1 {
		t.Errorf("Stats() = %+v, want 1 insert and 1 conflict", s)
	}
}

func TestWriter_BatchErrorRequeuesRows(t *testing.T) {
	db := &fakeDB{batchErr: errors.New("connection reset")}
	w := NewWriter(testConfig(), db, nil, nil)

	first := env("x")
	w.appendRow(transform(first))
	w.flush(context.Background())

	if s := w.Stats(); s.Errors != 1 || s.Inserts != 0 || s.Dropped != 0 {
		t.Errorf("Stats() = %+v, want 1 error and nothing dropped", s)
	}

	// Rows added after the failure queue behind the failed batch.
	w.appendRow(transform(env("y")))
	db.batchErr = nil
	w.flush(context.Background())

	if s := w.Stats(); s.Inserts != 2 || s.Flushes != 1 {
		t.Errorf("Stats() = %+v, want 2 inserts on retry", s)
	}
	retried := db.batches[len(db.batches)-1]
	if len(retried) != 2 || retried[0].Arguments[0] != first.ID.String() {
		t.Errorf("retry batch = %v, want the failed row first", retried)
	}
}

func TestWriter_RequeueRespectsBufferSize(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 1
	db := &fakeDB{batchErr: errors.New("connection reset")}
	w := NewWriter(cfg, db, nil, nil)

	w.appendRow(transform(env("1")))
	w.appendRow(transform(env("2")))
	w.flush(context.Background())

	if s := w.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
	db.batchErr = nil
	w.flush(context.Background())
	if s := w.Stats(); s.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", s.Inserts)
	}
}

func TestWriter_DropsWhenBufferFull(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 2
	w := NewWriter(cfg, &fakeDB{}, nil, nil)

	w.Add(env("1"))
	w.Add(env("2"))
	if w.Add(env("3")) {
		t.Error("Add() = true with a full buffer")
	}
	if s := w.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
}
