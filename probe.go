package sql2hub

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/jackc/pgx/v5/stdlib"
	mssql "github.com/microsoft/go-mssqldb"
)

// Prober reports the columns a query returns
type Prober interface {
	Probe(ctx context.Context, conn Conn, query string) ([]ColumnInfo, error)
}

// DriverProber returns the metadata-only prober for a driver connection, or nil if the driver has none
func DriverProber(driverConn any) Prober {
	switch driverConn.(type) {
	case *mssql.Conn:
		return FormatOnlyProber{}
	case *stdlib.Conn:
		return PrepareProber{}
	}
	return nil
}

// FormatOnlyProber runs the query under SET FMTONLY ON. SQL Server returns the column metadata
// of the first result set and no rows, and statements in the batch are not carried out.
type FormatOnlyProber struct{}

// FormatOnly wraps the query so it only reports its result shape
func FormatOnly(query string) string {
	return fmt.Sprintf("SET FMTONLY ON; %s; SET FMTONLY OFF", strings.TrimRight(strings.TrimSpace(query), ";"))
}

func (FormatOnlyProber) Probe(ctx context.Context, conn Conn, query string) ([]ColumnInfo, error) {
	columns, err := readColumns(conn.QueryContext(ctx, FormatOnly(query)))
	// a failed batch stops before its trailing SET, leaving FMTONLY on for the connection
	if _, rerr := conn.ExecContext(ctx, "SET FMTONLY OFF"); rerr != nil && err == nil {
		err = errors.Wrap(rerr, errors.Schema, "failed to reset FMTONLY")
	}
	if err != nil {
		return nil, err
	}
	return columns, nil
}

// PrepareProber prepares the query on a pgx connection. Postgres describes the statement without running it.
type PrepareProber struct{}

func (PrepareProber) Probe(ctx context.Context, conn Conn, query string) ([]ColumnInfo, error) {
	var columns []ColumnInfo
	err := conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New(errors.Schema, "not a pgx connection: %T", driverConn)
		}
		pgxConn := pc.Conn()
		description, err := pgxConn.PgConn().Prepare(ctx, "", query, nil)
		if err != nil {
			return err
		}
		for _, field := range description.Fields {
			column := ColumnInfo{Name: field.Name, Nullable: true}
			if typ, ok := pgxConn.TypeMap().TypeForOID(field.DataTypeOID); ok {
				column.DatabaseType = strings.ToUpper(typ.Name)
			}
			columns = append(columns, column)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}

// ExecuteProber runs the query and closes the result set before reading a row.
// Drivers may still produce or drain every row, and side effects of the query happen.
type ExecuteProber struct{}

func (ExecuteProber) Probe(ctx context.Context, conn Conn, query string) ([]ColumnInfo, error) {
	return readColumns(conn.QueryContext(ctx, query))
}

func readColumns(rows *sql.Rows, err error) ([]ColumnInfo, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.Schema, "failed to read column types")
	}
	return ColumnInfos(columnTypes), nil
}
