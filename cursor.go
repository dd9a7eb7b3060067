package sql2hub

import (
	"context"
	"database/sql"
	"time"

	"github.com/autom8ter/sql2hub/errors"
)

// Conn is a single database connection. *sql.Conn satisfies it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// Raw exposes the driver connection
	Raw(f func(driverConn any) error) error
	Close() error
}

// Connector hands out database connections
type Connector interface {
	Conn(ctx context.Context) (Conn, error)
}

// DBConnector adapts a *sql.DB pool. Each Conn reserves one pooled connection until it is closed.
type DBConnector struct {
	DB *sql.DB
}

// Conn reserves a connection from the pool
func (d DBConnector) Conn(ctx context.Context) (Conn, error) {
	return d.DB.Conn(ctx)
}

// OpenDB opens a *sql.DB for a registered driver and verifies it is reachable
func OpenDB(ctx context.Context, driver, connectionString string) (*sql.DB, error) {
	db, err := sql.Open(driver, connectionString)
	if err != nil {
		return nil, errors.Wrap(err, errors.Connection, "failed to open %s database", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.Connection, "failed to reach %s database", driver)
	}
	return db, nil
}

// Cursor owns one connection and the live result set of a query over it.
// The connection is acquired on first use and released by Close.
type Cursor struct {
	connector Connector
	query     string
	logger    Logger
	prober    Prober
	conn      Conn
	rows      *sql.Rows
	width     int
	closed    bool
}

// NewCursor creates a cursor for the query. No connection is opened until it is needed.
func NewCursor(connector Connector, query string, logger Logger) *Cursor {
	if logger == nil {
		logger = NopLogger()
	}
	return &Cursor{
		connector: connector,
		query:     query,
		logger:    logger,
	}
}

// Open acquires the connection if it is not already held
func (c *Cursor) Open(ctx context.Context) error {
	if c.closed {
		return errors.New(errors.Internal, "cursor is closed")
	}
	if c.conn != nil {
		return nil
	}
	conn, err := c.connector.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, errors.Connection, "failed to open connection")
	}
	c.conn = conn
	c.logger.Debug(ctx, "connection opened", nil)
	return nil
}

// Probe describes the query's columns without fetching rows. Drivers with no metadata-only
// probe fall back to executing the query and closing the result set unread.
func (c *Cursor) Probe(ctx context.Context) ([]ColumnInfo, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	prober := c.prober
	if prober == nil {
		if err := c.conn.Raw(func(driverConn any) error {
			prober = DriverProber(driverConn)
			return nil
		}); err != nil {
			return nil, errors.Wrap(err, errors.Connection, "failed to reach driver connection")
		}
	}
	if prober == nil {
		c.logger.Warn(ctx, "driver has no metadata-only probe, executing the query to read its columns", nil)
		prober = ExecuteProber{}
	}
	columns, err := prober.Probe(ctx, c.conn, c.query)
	if err != nil {
		return nil, errors.Wrap(err, errors.Schema, "failed to probe query")
	}
	return columns, nil
}

// Execute starts streaming the query's rows. width is the expected number of columns, or 0 to accept any.
func (c *Cursor) Execute(ctx context.Context, width int) error {
	if c.rows != nil {
		return errors.New(errors.Internal, "query is already executing")
	}
	if err := c.Open(ctx); err != nil {
		return err
	}
	start := time.Now()
	rows, err := c.conn.QueryContext(ctx, c.query)
	if err != nil {
		return errors.Wrap(err, errors.Fetch, "failed to execute query")
	}
	c.logger.Info(ctx, "query execution took", map[string]any{
		"seconds": time.Since(start).Seconds(),
	})
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return errors.Wrap(err, errors.Fetch, "failed to read columns")
	}
	if width > 0 && len(columns) != width {
		_ = rows.Close()
		return errors.New(errors.Fetch, "query returned %v columns but the schema has %v", len(columns), width)
	}
	c.rows = rows
	c.width = len(columns)
	return nil
}

// FetchNext reads the next row. It returns false once the result set is exhausted.
func (c *Cursor) FetchNext() (RawRow, bool, error) {
	if c.rows == nil {
		return nil, false, nil
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, false, errors.Wrap(err, errors.Fetch, "failed to fetch row")
		}
		return nil, false, nil
	}
	values := make(RawRow, c.width)
	dest := make([]any, c.width)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		return nil, false, errors.Wrap(err, errors.Fetch, "failed to scan row")
	}
	return values, true, nil
}

// Close releases the result set and the connection. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.rows != nil {
		err = c.rows.Close()
		c.rows = nil
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.conn = nil
		c.logger.Debug(context.Background(), "connection released", nil)
	}
	return errors.Wrap(err, errors.Connection, "failed to release connection")
}

// Closed returns true once Close has been called
func (c *Cursor) Closed() bool {
	return c.closed
}
