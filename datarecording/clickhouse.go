package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/structs"
	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// ClickHouseOptions locate the server a ClickHouse recorder writes to.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	// DialTimeout defaults to 10s.
	DialTimeout time.Duration
}

const (
	// clickhouseQueueLen bounds the batches waiting for the sender. Full
	// batches beyond it are dropped.
	clickhouseQueueLen = 4

	clickhouseAttempts = 3
	clickhouseBackoff  = 200 * time.Millisecond
)

// clickhouseSink is the part of a ClickHouse connection the writer uses.
type clickhouseSink interface {
	createTable(ctx context.Context, ddl string) error
	insert(ctx context.Context, tableName string, rows [][]any) error
	close() error
}

type connSink struct {
	conn clickhouse.Conn
}

func (s connSink) createTable(ctx context.Context, ddl string) error {
	return s.conn.Exec(ctx, ddl)
}

func (s connSink) insert(ctx context.Context, tableName string, rows [][]any) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			batch.Abort()
			return err
		}
	}

	return batch.Send()
}

func (s connSink) close() error {
	return s.conn.Close()
}

type clickhouseBatch struct {
	tableName string
	rows      [][]any
	done      chan struct{}
}

// clickhouseWriter buffers entries and hands full batches to a sender
// goroutine, so InsertData never waits on the network.
type clickhouseWriter struct {
	sink clickhouseSink

	mu         sync.Mutex
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool

	// sendLock guards batches against being closed while a batch is handed
	// over.
	sendLock sync.RWMutex
	batches  chan clickhouseBatch
	sender   sync.WaitGroup
	backoff  time.Duration
	dropped  atomic.Int64
}

// NewClickHouse connects to a ClickHouse server and returns a recorder
// writing to it. Tables are created if they do not exist, so several runs
// can append to the same tables. Full batches are sent in the background. A
// batch that still fails after a few attempts, or that finds the send queue
// full, is dropped and logged. Buffered entries are flushed when the process
// exits through atexit.
func NewClickHouse(opts ClickHouseOptions) (DataRecorder, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout:      opts.DialTimeout,
		MaxOpenConns:     2,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse %s: %w", opts.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse %s: %w", opts.Addr, err)
	}

	log.Infof("recording to clickhouse %s/%s", opts.Addr, opts.Database)

	w := newClickhouseWriter(connSink{conn: conn}, opts.BatchSize)

	atexit.Register(func() { w.Close() })

	return w, nil
}

func newClickhouseWriter(sink clickhouseSink, batchSize int) *clickhouseWriter {
	w := &clickhouseWriter{
		sink:      sink,
		tables:    make(map[string]*table),
		batchSize: batchSize,
		batches:   make(chan clickhouseBatch, clickhouseQueueLen),
		backoff:   clickhouseBackoff,
	}

	w.sender.Add(1)
	go w.send()

	return w
}

func (w *clickhouseWriter) CreateTable(tableName string, sampleEntry any) {
	if err := checkStructFields(sampleEntry); err != nil {
		panic(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	ddl := clickhouseDDL(tableName, sampleEntry)
	if err := w.sink.createTable(context.Background(), ddl); err != nil {
		panic(fmt.Errorf("creating table %s: %w", tableName, err))
	}

	w.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
}

// InsertData buffers the entry. When the buffer is full it is queued for
// the sender without waiting.
func (w *clickhouseWriter) InsertData(tableName string, entry any) {
	w.mu.Lock()

	t, exists := w.tables[tableName]
	if !exists {
		w.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		w.mu.Unlock()
		panic(fmt.Sprintf("table %s holds %s, not %T",
			tableName, t.structType, entry))
	}

	if w.closed {
		w.mu.Unlock()
		w.drop(1)
		return
	}

	t.entries = append(t.entries, entry)
	w.entryCount++

	var full []clickhouseBatch
	if w.entryCount >= w.batchSize {
		full = w.takeBatches()
	}

	w.mu.Unlock()

	w.sendLock.RLock()
	defer w.sendLock.RUnlock()

	closed := w.isClosed()

	for _, b := range full {
		if closed {
			w.drop(len(b.rows))
			continue
		}

		select {
		case w.batches <- b:
		default:
			w.drop(len(b.rows))
		}
	}
}

// takeBatches moves the buffered entries into one batch per table. The
// caller holds mu.
func (w *clickhouseWriter) takeBatches() []clickhouseBatch {
	var batches []clickhouseBatch

	for name, t := range w.tables {
		if len(t.entries) == 0 {
			continue
		}

		rows := make([][]any, len(t.entries))
		for i, entry := range t.entries {
			rows[i] = clickhouseRow(entry)
		}

		batches = append(batches, clickhouseBatch{tableName: name, rows: rows})
		t.entries = nil
	}

	w.entryCount = 0

	return batches
}

func (w *clickhouseWriter) drop(n int) {
	total := w.dropped.Add(int64(n))
	log.Warnf("clickhouse: dropped %d entries, %d in total", n, total)
}

func (w *clickhouseWriter) send() {
	defer w.sender.Done()

	for b := range w.batches {
		if len(b.rows) > 0 {
			w.sendWithRetry(b)
		}

		if b.done != nil {
			close(b.done)
		}
	}
}

func (w *clickhouseWriter) sendWithRetry(b clickhouseBatch) {
	backoff := w.backoff

	for attempt := 1; ; attempt++ {
		err := w.sink.insert(context.Background(), b.tableName, b.rows)
		if err == nil {
			return
		}

		log.Errorf("clickhouse: inserting into %s (attempt %d): %v",
			b.tableName, attempt, err)

		if attempt == clickhouseAttempts {
			w.drop(len(b.rows))
			return
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}

func (w *clickhouseWriter) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Flush queues the buffered entries and waits until the sender has handled
// everything queued so far.
func (w *clickhouseWriter) Flush() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	batches := w.takeBatches()
	w.mu.Unlock()

	done := make(chan struct{})
	batches = append(batches, clickhouseBatch{done: done})

	w.sendLock.RLock()
	if w.isClosed() {
		w.sendLock.RUnlock()
		return
	}

	for _, b := range batches {
		w.batches <- b
	}
	w.sendLock.RUnlock()

	<-done
}

// isClosed must be checked under sendLock before queueing a batch: Close
// marks the writer closed before it closes the queue.
func (w *clickhouseWriter) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.closed
}

// Dropped returns how many entries were never written.
func (w *clickhouseWriter) Dropped() int64 {
	return w.dropped.Load()
}

func (w *clickhouseWriter) Close() error {
	w.Flush()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.sendLock.Lock()
	close(w.batches)
	w.sendLock.Unlock()

	w.sender.Wait()

	return w.sink.close()
}

// clickhouseDDL returns the statement creating a MergeTree table whose
// columns are the fields of sampleEntry.
func clickhouseDDL(tableName string, sampleEntry any) string {
	t := reflect.TypeOf(sampleEntry)
	names := structs.Names(sampleEntry)

	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = name + " " + clickhouseType(t.Field(i).Type.Kind())
	}

	return "CREATE TABLE IF NOT EXISTS " + tableName + " (\n\t" +
		strings.Join(cols, ",\n\t") +
		"\n) ENGINE = MergeTree() ORDER BY tuple()"
}

// Integers are widened to 64 bits so that clickhouseRow needs no per-width
// conversion.
func clickhouseType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "Int64"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "UInt64"
	case reflect.Float32, reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

func clickhouseRow(entry any) []any {
	v := reflect.ValueOf(entry)
	row := make([]any, v.NumField())

	for i := range row {
		f := v.Field(i)

		switch f.Kind() {
		case reflect.Bool:
			row[i] = f.Bool()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			row[i] = f.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			row[i] = f.Uint()
		case reflect.Float32, reflect.Float64:
			row[i] = f.Float()
		default:
			row[i] = f.String()
		}
	}

	return row
}
