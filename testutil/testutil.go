package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/autom8ter/sql2hub"
	"github.com/brianvoe/gofakeit/v6"
)

// TelemetryQuery is the query the telemetry fixtures answer
const TelemetryQuery = "SELECT Id, DeviceId, Temperature, Reading, Active, Email, Recorded FROM Telemetry"

// Column describes a mocked result column
type Column struct {
	Name         string
	DatabaseType string
	// Example is a value of the type the driver scans the column into
	Example  any
	Nullable bool
}

// TelemetryColumns are the columns returned by TelemetryQuery
var TelemetryColumns = []Column{
	{Name: "Id", DatabaseType: "INT", Example: int64(0)},
	{Name: "DeviceId", DatabaseType: "UNIQUEIDENTIFIER", Example: "", Nullable: true},
	{Name: "Temperature", DatabaseType: "FLOAT", Example: float64(0), Nullable: true},
	{Name: "Reading", DatabaseType: "DECIMAL", Example: []byte{}, Nullable: true},
	{Name: "Active", DatabaseType: "BIT", Example: false, Nullable: true},
	{Name: "Email", DatabaseType: "NVARCHAR", Example: "", Nullable: true},
	{Name: "Recorded", DatabaseType: "DATETIME2", Example: time.Time{}, Nullable: true},
}

func init() {
	gofakeit.Seed(0)
}

// NewMock opens a mock database that matches queries exactly. It is closed when the test ends.
func NewMock(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, mock
}

// NewRows creates mock rows that report column types the way a driver does
func NewRows(columns []Column) *sqlmock.Rows {
	defs := make([]*sqlmock.Column, len(columns))
	for i, c := range columns {
		defs[i] = sqlmock.NewColumn(c.Name).OfType(c.DatabaseType, c.Example).Nullable(c.Nullable)
	}
	return sqlmock.NewRowsWithColumnDefinition(defs...)
}

// ExpectQuery expects the executing schema probe sqlmock connections fall back to and then the execution returning rows
func ExpectQuery(mock sqlmock.Sqlmock, query string, columns []Column, rows ...[]driver.Value) *sqlmock.Rows {
	mock.ExpectQuery(query).WillReturnRows(NewRows(columns))
	result := NewRows(columns)
	for _, row := range rows {
		result.AddRow(row...)
	}
	mock.ExpectQuery(query).WillReturnRows(result)
	return result
}

// NewTelemetryRow generates a telemetry row with the given id
func NewTelemetryRow(id int) []driver.Value {
	return []driver.Value{
		int64(id),
		gofakeit.UUID(),
		gofakeit.Float64Range(-20, 45),
		[]byte(fmt.Sprintf("%.2f", gofakeit.Float64Range(0, 100))),
		gofakeit.Bool(),
		gofakeit.Email(),
		gofakeit.Date().UTC(),
	}
}

// NewTelemetryRows generates n telemetry rows with ids 1..n
func NewTelemetryRows(n int) [][]driver.Value {
	rows := make([][]driver.Value, n)
	for i := range rows {
		rows[i] = NewTelemetryRow(i + 1)
	}
	return rows
}

// CountingConnector counts the connections handed out by Connector and released by callers
type CountingConnector struct {
	Connector sql2hub.Connector
	opened    atomic.Int32
	closed    atomic.Int32
}

// Conn opens a connection from the underlying connector
func (c *CountingConnector) Conn(ctx context.Context) (sql2hub.Conn, error) {
	conn, err := c.Connector.Conn(ctx)
	if err != nil {
		return nil, err
	}
	c.opened.Add(1)
	return &countingConn{Conn: conn, connector: c}, nil
}

// Opened returns the number of connections opened
func (c *CountingConnector) Opened() int {
	return int(c.opened.Load())
}

// Closed returns the number of connections released
func (c *CountingConnector) Closed() int {
	return int(c.closed.Load())
}

type countingConn struct {
	sql2hub.Conn
	connector *CountingConnector
}

func (c *countingConn) Close() error {
	c.connector.closed.Add(1)
	return c.Conn.Close()
}

// FailingConnector fails every connection attempt with Err
type FailingConnector struct {
	Err error
}

func (f FailingConnector) Conn(ctx context.Context) (sql2hub.Conn, error) {
	return nil, f.Err
}

// Recorder is a publisher that keeps every payload it is given
type Recorder struct {
	mu       sync.Mutex
	payloads []string
	// Fail, when set, is called with the 1-based publish attempt. A returned error fails the publish.
	Fail   func(attempt int) error
	calls  int
	closed bool
}

func (r *Recorder) Publish(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.Fail != nil {
		if err := r.Fail(r.calls); err != nil {
			return err
		}
	}
	r.payloads = append(r.payloads, string(payload))
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Payloads returns the published payloads in order
func (r *Recorder) Payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.payloads...)
}

// Closed returns true once Close has been called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
