package sql2hub

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/samber/lo"
)

// TypeTag is the declared type of a column, used to coerce its values into json
type TypeTag string

const (
	TypeString    TypeTag = "string"
	TypeInteger   TypeTag = "integer"
	TypeFloat     TypeTag = "float"
	TypeDecimal   TypeTag = "decimal"
	TypeBoolean   TypeTag = "boolean"
	TypeTime      TypeTag = "time"
	// TypeTimeOfDay is a wall clock time with no date
	TypeTimeOfDay TypeTag = "timeofday"
	TypeBinary    TypeTag = "binary"
	TypeUUID      TypeTag = "uuid"
	TypeUnknown   TypeTag = "unknown"
)

var databaseTypes = map[string]TypeTag{
	"CHAR":             TypeString,
	"VARCHAR":          TypeString,
	"NCHAR":            TypeString,
	"NVARCHAR":         TypeString,
	"TEXT":             TypeString,
	"NTEXT":            TypeString,
	"XML":              TypeString,
	"SYSNAME":          TypeString,
	"BPCHAR":           TypeString,
	"CITEXT":           TypeString,
	"JSON":             TypeString,
	"JSONB":            TypeString,
	"INT":              TypeInteger,
	"INTEGER":          TypeInteger,
	"BIGINT":           TypeInteger,
	"SMALLINT":         TypeInteger,
	"TINYINT":          TypeInteger,
	"MEDIUMINT":        TypeInteger,
	"INT2":             TypeInteger,
	"INT4":             TypeInteger,
	"INT8":             TypeInteger,
	"SERIAL":           TypeInteger,
	"BIGSERIAL":        TypeInteger,
	"REAL":             TypeFloat,
	"FLOAT":            TypeFloat,
	"FLOAT4":           TypeFloat,
	"FLOAT8":           TypeFloat,
	"DOUBLE":           TypeFloat,
	"DECIMAL":          TypeDecimal,
	"NUMERIC":          TypeDecimal,
	"MONEY":            TypeDecimal,
	"SMALLMONEY":       TypeDecimal,
	"BIT":              TypeBoolean,
	"BOOL":             TypeBoolean,
	"BOOLEAN":          TypeBoolean,
	"DATE":             TypeTime,
	"TIME":             TypeTimeOfDay,
	"DATETIME":         TypeTime,
	"DATETIME2":        TypeTime,
	"SMALLDATETIME":    TypeTime,
	"DATETIMEOFFSET":   TypeTime,
	"TIMESTAMP":        TypeTime,
	"TIMESTAMPTZ":      TypeTime,
	"TIMETZ":           TypeTimeOfDay,
	"BINARY":           TypeBinary,
	"VARBINARY":        TypeBinary,
	"IMAGE":            TypeBinary,
	"BLOB":             TypeBinary,
	"BYTEA":            TypeBinary,
	"UNIQUEIDENTIFIER": TypeUUID,
	"UUID":             TypeUUID,
}

var timeType = reflect.TypeOf(time.Time{})

// TypeTagOf maps a database type name and driver scan type to a TypeTag.
// The database type name wins. The scan type is consulted when the name is unknown. Either may be empty/nil.
func TypeTagOf(databaseType string, scanType reflect.Type) TypeTag {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if tag, ok := databaseTypes[name]; ok {
		return tag
	}
	if scanType == nil {
		return TypeUnknown
	}
	for scanType.Kind() == reflect.Ptr {
		scanType = scanType.Elem()
	}
	if scanType == timeType {
		return TypeTime
	}
	switch scanType.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Slice:
		if scanType.Elem().Kind() == reflect.Uint8 {
			return TypeBinary
		}
	}
	return TypeUnknown
}

// Column is a named, typed column of a query result
type Column struct {
	Name         string  `json:"name"`
	Type         TypeTag `json:"type"`
	DatabaseType string  `json:"databaseType,omitempty"`
	Nullable     bool    `json:"nullable"`
}

// Schema is the ordered set of columns returned by a query
type Schema []Column

// ColumnInfo is a result column as a driver describes it
type ColumnInfo struct {
	Name         string
	DatabaseType string
	// ScanType is nil when the driver does not report one
	ScanType reflect.Type
	// Nullable is true when the driver cannot tell
	Nullable bool
}

// ColumnInfos converts the column types of a result set
func ColumnInfos(columnTypes []*sql.ColumnType) []ColumnInfo {
	return lo.Map(columnTypes, func(ct *sql.ColumnType, _ int) ColumnInfo {
		nullable, ok := ct.Nullable()
		return ColumnInfo{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			ScanType:     ct.ScanType(),
			Nullable:     nullable || !ok,
		}
	})
}

// SchemaFromColumns builds a schema from described columns.
// Unnamed columns are named column<ordinal>. Duplicate names are a schema error.
func SchemaFromColumns(columns []ColumnInfo) (Schema, error) {
	schema := make(Schema, 0, len(columns))
	seen := map[string]struct{}{}
	for i, c := range columns {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("column%d", i+1)
		}
		if _, ok := seen[name]; ok {
			return nil, errors.New(errors.Schema, "duplicate column name: %s", name)
		}
		seen[name] = struct{}{}
		schema = append(schema, Column{
			Name:         name,
			Type:         TypeTagOf(c.DatabaseType, c.ScanType),
			DatabaseType: c.DatabaseType,
			Nullable:     c.Nullable,
		})
	}
	return schema, nil
}

// Names returns the column names in order
func (s Schema) Names() []string {
	return lo.Map(s, func(c Column, _ int) string {
		return c.Name
	})
}

// Column returns the column with the given name
func (s Schema) Column(name string) (Column, bool) {
	return lo.Find(s, func(c Column) bool {
		return c.Name == name
	})
}

// String returns the schema as a json string
func (s Schema) String() string {
	bits, _ := json.Marshal(s)
	return string(bits)
}

// JSONSchema returns a draft-07 json schema describing the documents produced from rows of this schema.
// Every property is optional since null columns are omitted.
func (s Schema) JSONSchema() []byte {
	properties := map[string]any{}
	for _, c := range s {
		properties[c.Name] = c.Type.jsonSchema()
	}
	bits, _ := json.Marshal(map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	})
	return bits
}

func (t TypeTag) jsonSchema() map[string]any {
	switch t {
	case TypeString:
		return map[string]any{"type": "string"}
	case TypeInteger:
		return map[string]any{"type": "integer"}
	case TypeFloat, TypeDecimal:
		return map[string]any{"type": "number"}
	case TypeBoolean:
		return map[string]any{"type": "boolean"}
	case TypeTime:
		return map[string]any{"type": "string", "format": "date-time"}
	case TypeTimeOfDay:
		return map[string]any{"type": "string"}
	case TypeBinary:
		return map[string]any{"type": "string", "contentEncoding": "base64"}
	case TypeUUID:
		return map[string]any{"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"}
	default:
		return map[string]any{}
	}
}
