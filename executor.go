package sql2hub

import (
	"context"
	"strings"
	"time"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/tidwall/gjson"
)

// ExecutorOpt is an option for configuring an executor
type ExecutorOpt func(e *Executor)

// WithLogger sets the executor's logger
func WithLogger(logger Logger) ExecutorOpt {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithProber sets how the query's columns are discovered. By default the prober is chosen from the driver.
func WithProber(prober Prober) ExecutorOpt {
	return func(e *Executor) {
		e.prober = prober
	}
}

// BatchFunc handles a batch. It returns false to stop streaming and an error if one occurred.
type BatchFunc func(ctx context.Context, batch *Batch) (bool, error)

// Executor runs one query and turns its rows into batches of json documents.
// An executor streams its result once; a new run needs a new executor.
type Executor struct {
	query        string
	maxBatchSize int
	logger       Logger
	prober       Prober
	cursor       *Cursor
	schema       Schema
	consumed     bool
}

// NewExecutor creates an executor for the query. The connection is opened on first use.
func NewExecutor(connector Connector, query string, maxBatchSize int, opts ...ExecutorOpt) (*Executor, error) {
	if connector == nil {
		return nil, errors.New(errors.Configuration, "a connector is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.Configuration, "query not specified")
	}
	if maxBatchSize < 1 {
		return nil, errors.New(errors.Configuration, "max batch size must be at least 1: got %v", maxBatchSize)
	}
	e := &Executor{
		query:        query,
		maxBatchSize: maxBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = NopLogger()
	}
	e.cursor = NewCursor(connector, query, e.logger)
	e.cursor.prober = e.prober
	return e, nil
}

// Query returns the query text
func (e *Executor) Query() string {
	return e.query
}

// MaxBatchSize returns the maximum number of documents per batch
func (e *Executor) MaxBatchSize() int {
	return e.maxBatchSize
}

// DiscoverSchema probes the query for its columns. The schema is computed once and cached.
func (e *Executor) DiscoverSchema(ctx context.Context) (Schema, error) {
	if e.schema != nil {
		return e.schema, nil
	}
	columns, err := e.cursor.Probe(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := SchemaFromColumns(columns)
	if err != nil {
		return nil, err
	}
	e.schema = schema
	e.logger.Debug(ctx, "discovered schema", map[string]any{
		"columns": schema.Names(),
	})
	return e.schema, nil
}

// Batches returns the lazy sequence of batches for the query. Rows are fetched as Next is called.
// The connection is released when the sequence is exhausted, fails, or Close is called.
func (e *Executor) Batches(ctx context.Context) *BatchIterator {
	if e.consumed {
		return &BatchIterator{done: true, err: errors.New(errors.Internal, "executor results already consumed")}
	}
	e.consumed = true
	accumulator, _ := NewAccumulator(e.maxBatchSize)
	return &BatchIterator{
		ctx:         ctx,
		executor:    e,
		accumulator: accumulator,
	}
}

// StreamBatches calls fn with each batch until the sequence is exhausted, fn returns false, or an error occurs.
// The connection is released before StreamBatches returns.
func (e *Executor) StreamBatches(ctx context.Context, fn BatchFunc) error {
	it := e.Batches(ctx)
	defer it.Close()
	for it.Next() {
		next, err := fn(ctx, it.Batch())
		if err != nil {
			return err
		}
		if !next {
			return it.Close()
		}
	}
	return it.Err()
}

// QueryResult returns every row of the query as a single batch
func (e *Executor) QueryResult(ctx context.Context) (*Batch, error) {
	var result = &Batch{}
	if err := e.StreamBatches(ctx, func(ctx context.Context, batch *Batch) (bool, error) {
		result.Documents = append(result.Documents, batch.Documents...)
		return true, nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// JSONResult runs a query whose first column holds json text and returns the concatenated text of every row.
// Servers that chunk large json output over several rows are reassembled.
func (e *Executor) JSONResult(ctx context.Context) (string, error) {
	if e.consumed {
		return "", errors.New(errors.Internal, "executor results already consumed")
	}
	e.consumed = true
	defer e.cursor.Close()
	if err := e.cursor.Execute(ctx, 0); err != nil {
		return "", err
	}
	var (
		sb   strings.Builder
		rows int
	)
	for {
		row, ok, err := e.cursor.FetchNext()
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		rows++
		if len(row) == 0 || row[0] == nil {
			continue
		}
		text, err := coerceString(row[0])
		if err != nil {
			return "", errors.Wrap(err, errors.Coercion, "failed to read json column")
		}
		sb.WriteString(text)
	}
	e.logger.Info(ctx, "retrieved rows", map[string]any{"rows": rows})
	result := sb.String()
	if result != "" && !gjson.Valid(result) {
		return "", errors.New(errors.Coercion, "query result is not valid json")
	}
	return result, e.cursor.Close()
}

// Close releases the connection if it is still held
func (e *Executor) Close() error {
	return e.cursor.Close()
}

// BatchIterator is a pull based sequence of batches
//
//	it := executor.Batches(ctx)
//	defer it.Close()
//	for it.Next() {
//		publish(it.Batch().Bytes())
//	}
//	if err := it.Err(); err != nil {
type BatchIterator struct {
	ctx         context.Context
	executor    *Executor
	accumulator *Accumulator
	schema      Schema
	batch       *Batch
	started     time.Time
	rows        int
	batches     int
	executing   bool
	done        bool
	err         error
}

// Next fetches rows until the next batch is complete. It returns false when the sequence is exhausted or failed.
func (it *BatchIterator) Next() bool {
	it.batch = nil
	if it.done {
		return false
	}
	if !it.executing {
		if err := it.start(); err != nil {
			it.fail(err)
			return false
		}
	}
	for {
		row, ok, err := it.executor.cursor.FetchNext()
		if err != nil {
			it.fail(err)
			return false
		}
		if !ok {
			break
		}
		it.rows++
		doc, cerrs := Project(it.schema, row)
		for _, cerr := range cerrs {
			tags := cerr.Tags()
			tags["row"] = it.rows
			it.executor.logger.Warn(it.ctx, "dropped field that failed coercion", tags)
		}
		if batch, ok := it.accumulator.Add(doc); ok {
			it.batch = batch
			it.batches++
			return true
		}
	}
	batch, ok := it.accumulator.Flush()
	if ok {
		it.batch = batch
		it.batches++
	}
	it.finish()
	return ok
}

func (it *BatchIterator) start() error {
	it.executing = true
	it.started = time.Now()
	schema, err := it.executor.DiscoverSchema(it.ctx)
	if err != nil {
		return err
	}
	it.schema = schema
	return it.executor.cursor.Execute(it.ctx, len(schema))
}

func (it *BatchIterator) fail(err error) {
	it.err = err
	it.done = true
	_ = it.executor.cursor.Close()
}

func (it *BatchIterator) finish() {
	it.done = true
	if err := it.executor.cursor.Close(); err != nil {
		it.err = err
	}
	it.executor.logger.Info(it.ctx, "retrieved rows", map[string]any{
		"rows":    it.rows,
		"batches": it.batches,
		"seconds": time.Since(it.started).Seconds(),
	})
}

// Batch returns the batch produced by the last call to Next
func (it *BatchIterator) Batch() *Batch {
	return it.batch
}

// Err returns the error that ended the sequence, if any
func (it *BatchIterator) Err() error {
	return it.err
}

// Rows returns the number of rows fetched so far
func (it *BatchIterator) Rows() int {
	return it.rows
}

// Schema returns the schema the documents were projected with. It is nil until the first call to Next.
func (it *BatchIterator) Schema() Schema {
	return it.schema
}

// Close stops the sequence and releases the connection. It is safe to call more than once.
func (it *BatchIterator) Close() error {
	it.done = true
	it.batch = nil
	if it.executor == nil {
		return nil
	}
	return it.executor.cursor.Close()
}
