package report_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"reftester/internal/common/db"
	"reftester/internal/common/mq"
	"reftester/internal/common/storage"
	"reftester/internal/judge/model"
	"reftester/internal/report"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"

	"github.com/go-sql-driver/mysql"
	"github.com/klauspost/compress/zstd"
)

var start = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func sampleResult() model.BatchResult {
	return model.NewBatchResult([]model.Outcome{
		{Path: "a.cpp", Kind: model.OutcomeAccepted, Duration: 1500 * time.Millisecond},
		{Path: "b.cpp", Kind: model.OutcomeNotAccepted},
		{Path: "_c.cpp", Kind: model.OutcomeIgnored},
		{Path: "d.cpp", Kind: model.OutcomeSubmissionError, Err: appErr.New(appErr.SubmissionTimeout)},
	})
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := report.NewPrinter(&buf)
	res := sampleResult()
	for _, o := range res.Outcomes {
		if err := p.RecordOutcome(context.Background(), o); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}
	if err := p.RecordBatch(context.Background(), res); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	want := strings.Join([]string{
		"a.cpp ... OK",
		"b.cpp ... FAILED: wrong verdict",
		"_c.cpp ... IGNORED",
		"d.cpp ... FAILED: submission timeout",
		"",
		"FAILED. 1 passed; 2 failed; 1 ignored",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

type fakeProducer struct {
	topics   []string
	messages []*mq.Message
	err      error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, m *mq.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, m)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestEventSink(t *testing.T) {
	producer := &fakeProducer{}
	sink, err := report.NewEventSink(producer, "", "run-1", clock.NewManual(start))
	if err != nil {
		t.Fatalf("NewEventSink() error = %v", err)
	}
	res := sampleResult()
	if err := sink.RecordOutcome(context.Background(), res.Outcomes[3]); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if err := sink.RecordBatch(context.Background(), res); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	if len(producer.messages) != 2 || producer.topics[0] != "reftester.outcomes" {
		t.Fatalf("published %d messages to %v", len(producer.messages), producer.topics)
	}
	var ev report.Event
	if err := json.Unmarshal(producer.messages[0].Body, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.RunID != "run-1" || ev.Path != "d.cpp" || ev.Kind != "submission_error" || ev.Error != "submission timeout" {
		t.Fatalf("event = %+v", ev)
	}
	if kind, _ := producer.messages[0].GetHeader("kind"); kind != "outcome" {
		t.Fatalf("kind header = %q", kind)
	}
	var sum report.Summary
	if err := json.Unmarshal(producer.messages[1].Body, &sum); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if sum.Passed != 1 || sum.Failed != 2 || sum.Ignored != 1 || sum.OK || !sum.At.Equal(start) {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestEventSinkPublishError(t *testing.T) {
	sink, err := report.NewEventSink(&fakeProducer{err: errors.New("broker down")}, "t", "run-1", nil)
	if err != nil {
		t.Fatalf("NewEventSink() error = %v", err)
	}
	if err := sink.RecordBatch(context.Background(), sampleResult()); !appErr.Is(err, appErr.QueueError) {
		t.Fatalf("error = %v, want QueueError", err)
	}
}

type execCall struct {
	query string
	args  []interface{}
}

type fakeDB struct {
	execs     []execCall
	committed bool
	txErr     error

	// previous holds the last recorded kind per path; missing paths have no history.
	previous map[string]string
	queryErr error
	queries  int
}

type fakeRow struct {
	kind string
	err  error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.kind
	return nil
}

func (d *fakeDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) QueryRow(_ context.Context, _ string, args ...interface{}) db.Row {
	d.queries++
	if d.queryErr != nil {
		return fakeRow{err: d.queryErr}
	}
	kind, ok := d.previous[args[0].(string)]
	if !ok {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{kind: kind}
}

func (d *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	d.execs = append(d.execs, execCall{query: query, args: args})
	return nil, nil
}

func (d *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if d.txErr != nil {
		return d.txErr
	}
	if err := fn(&fakeTx{db: d}); err != nil {
		return err
	}
	d.committed = true
	return nil
}

func (d *fakeDB) Ping(context.Context) error { return nil }
func (d *fakeDB) Close() error { return nil }

type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) Query(ctx context.Context, q string, args ...interface{}) (db.Rows, error) {
	return t.db.Query(ctx, q, args...)
}
func (t *fakeTx) QueryRow(ctx context.Context, q string, args ...interface{}) db.Row {
	return t.db.QueryRow(ctx, q, args...)
}
func (t *fakeTx) Exec(ctx context.Context, q string, args ...interface{}) (db.Result, error) {
	return t.db.Exec(ctx, q, args...)
}
func (t *fakeTx) Commit() error { return nil }
func (t *fakeTx) Rollback() error { return nil }

func TestHistorySink(t *testing.T) {
	database := &fakeDB{}
	sink, err := report.NewHistorySink(database, "run-1", clock.NewManual(start))
	if err != nil {
		t.Fatalf("NewHistorySink() error = %v", err)
	}
	if err := sink.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	schemaExecs := len(database.execs)
	if schemaExecs != len(report.HistorySchema) {
		t.Fatalf("schema statements = %d", schemaExecs)
	}

	if err := sink.RecordBatch(context.Background(), sampleResult()); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}
	if !database.committed {
		t.Fatal("history must be written in a committed transaction")
	}
	rows := database.execs[schemaExecs:]
	if len(rows) != 5 {
		t.Fatalf("statements = %d, want run + 4 outcomes", len(rows))
	}
	if !strings.HasPrefix(rows[0].query, "INSERT INTO test_runs") {
		t.Fatalf("first statement = %q", rows[0].query)
	}
	if rows[0].args[0] != "run-1" || rows[0].args[1] != 1 || rows[0].args[4] != false {
		t.Fatalf("run args = %v", rows[0].args)
	}
	if rows[4].args[1] != "d.cpp" || rows[4].args[2] != "submission_error" {
		t.Fatalf("outcome args = %v", rows[4].args)
	}
	for _, row := range rows[1:] {
		if row.args[5] != false {
			t.Errorf("%v regressed without history", row.args[1])
		}
	}
	// Only failures look up history.
	if database.queries != 2 {
		t.Fatalf("history lookups = %d, want 2", database.queries)
	}
}

func TestHistorySinkFlagsRegressions(t *testing.T) {
	database := &fakeDB{previous: map[string]string{
		"a.cpp":  "accepted",
		"b.cpp":  "accepted",
		"_c.cpp": "accepted",
		"d.cpp":  "not_accepted",
	}}
	sink, _ := report.NewHistorySink(database, "run-2", clock.NewManual(start))
	if err := sink.RecordBatch(context.Background(), sampleResult()); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	want := map[string]bool{"a.cpp": false, "b.cpp": true, "_c.cpp": false, "d.cpp": false}
	for _, row := range database.execs[1:] {
		path := row.args[1].(string)
		if got := row.args[5]; got != want[path] {
			t.Errorf("%s regressed = %v, want %v", path, got, want[path])
		}
	}
}

func TestHistorySinkLookupError(t *testing.T) {
	database := &fakeDB{queryErr: errors.New("lost connection")}
	sink, _ := report.NewHistorySink(database, "run-1", nil)
	err := sink.RecordBatch(context.Background(), sampleResult())
	if !appErr.Is(err, appErr.DatabaseError) {
		t.Fatalf("error = %v, want DatabaseError", err)
	}
	if database.committed {
		t.Fatal("a failed lookup must not commit the run")
	}
}

func TestHistorySinkErrors(t *testing.T) {
	dup := fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'run-1' for key 'PRIMARY'"})
	sink, _ := report.NewHistorySink(&fakeDB{txErr: dup}, "run-1", nil)
	if err := sink.RecordBatch(context.Background(), sampleResult()); err != nil {
		t.Fatalf("duplicate run should be ignored, got %v", err)
	}

	sink, _ = report.NewHistorySink(&fakeDB{txErr: errors.New("gone")}, "run-1", nil)
	if err := sink.RecordBatch(context.Background(), sampleResult()); !appErr.Is(err, appErr.DatabaseError) {
		t.Fatalf("error = %v, want DatabaseError", err)
	}
}

type fakeStorage struct {
	buckets     map[string]bool
	objects     map[string][]byte
	contentType string
}

func (s *fakeStorage) EnsureBucket(_ context.Context, bucket string) error {
	if s.buckets == nil {
		s.buckets = make(map[string]bool)
	}
	s.buckets[bucket] = true
	return nil
}

func (s *fakeStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[bucket+"/"+key] = data
	s.contentType = contentType
	return nil
}

func (s *fakeStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectStat, error) {
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, errors.New("not found")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data)), ContentType: s.contentType}, nil
}

func TestArchiveSink(t *testing.T) {
	store := &fakeStorage{}
	sink, err := report.NewArchiveSink(store, "runs", "nightly", "run-1", clock.NewManual(start))
	if err != nil {
		t.Fatalf("NewArchiveSink() error = %v", err)
	}
	if sink.ObjectKey() != "nightly/run-1.jsonl.zst" {
		t.Fatalf("ObjectKey() = %q", sink.ObjectKey())
	}
	if err := sink.RecordBatch(context.Background(), sampleResult()); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}
	if !store.buckets["runs"] {
		t.Fatal("bucket should be ensured before upload")
	}
	stat, err := store.StatObject(context.Background(), "runs", sink.ObjectKey())
	if err != nil || stat.ContentType != "application/zstd" {
		t.Fatalf("StatObject() = %+v, %v", stat, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(store.objects["runs/"+sink.ObjectKey()], nil)
	if err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 5 {
		t.Fatalf("archive lines = %d, want 5", len(lines))
	}
	var sum report.Summary
	if err := json.Unmarshal([]byte(lines[4]), &sum); err != nil || sum.RunID != "run-1" || sum.Failed != 2 {
		t.Fatalf("summary line = %q (%v)", lines[4], err)
	}
}

func TestArchiveSinkRequiresBucket(t *testing.T) {
	if _, err := report.NewArchiveSink(&fakeStorage{}, "", "", "run-1", nil); err == nil {
		t.Fatal("expected error without bucket")
	}
}
