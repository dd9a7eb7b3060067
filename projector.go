package sql2hub

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/autom8ter/sql2hub/errors"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/spf13/cast"
)

// RawRow is one fetched record. A nil entry means the column had no value.
type RawRow []any

// CoercionError is returned when a value cannot be represented under its column's declared type
type CoercionError struct {
	Column string
	Type   TypeTag
	Value  any
	Err    error
}

func (c *CoercionError) Error() string {
	return fmt.Sprintf("failed to coerce column %s value %v (%T) to %s: %v", c.Column, c.Value, c.Value, c.Type, c.Err)
}

func (c *CoercionError) Unwrap() error {
	return c.Err
}

// Code returns errors.Coercion
func (c *CoercionError) Code() errors.Code {
	return errors.Coercion
}

// Tags returns the error as log tags
func (c *CoercionError) Tags() map[string]any {
	return map[string]any{
		"column":     c.Column,
		"type":       c.Type,
		"value":      fmt.Sprintf("%v", c.Value),
		"value_type": fmt.Sprintf("%T", c.Value),
	}
}

// Project converts a fetched row into a document with keys in schema order.
// Columns with a nil value are omitted. A value that fails coercion is left out of the
// document and reported in the returned errors; the remaining columns are still projected.
func Project(schema Schema, row RawRow) (*Document, []*CoercionError) {
	doc := NewDocument()
	var errs []*CoercionError
	for i, column := range schema {
		if i >= len(row) || row[i] == nil {
			continue
		}
		if err := setCoerced(doc, column, row[i]); err != nil {
			errs = append(errs, &CoercionError{
				Column: column.Name,
				Type:   column.Type,
				Value:  row[i],
				Err:    err,
			})
		}
	}
	return doc, errs
}

func setCoerced(doc *Document, column Column, value any) error {
	switch column.Type {
	case TypeDecimal:
		raw, err := coerceDecimal(value)
		if err != nil {
			return err
		}
		return doc.SetRaw(column.Name, raw)
	case TypeUnknown:
		return setUnknown(doc, column.Name, value)
	}
	coerced, err := Coerce(column.Type, value)
	if err != nil {
		return err
	}
	return doc.Set(column.Name, coerced)
}

// Coerce converts a driver value into the json-ready representation of the given type.
// Decimals are returned as their json number literal.
func Coerce(tag TypeTag, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch tag {
	case TypeString:
		return coerceString(value)
	case TypeInteger:
		return coerceInteger(value)
	case TypeFloat:
		return coerceFloat(value)
	case TypeDecimal:
		return coerceDecimal(value)
	case TypeBoolean:
		return coerceBoolean(value)
	case TypeTime:
		return coerceTime(value)
	case TypeTimeOfDay:
		return coerceTimeOfDay(value)
	case TypeBinary:
		return coerceBinary(value)
	case TypeUUID:
		return coerceUUID(value)
	default:
		return unknownValue(value)
	}
}

func coerceString(value any) (string, error) {
	switch value := value.(type) {
	case []byte:
		return string(value), nil
	case time.Time:
		return value.Format(time.RFC3339Nano), nil
	}
	return cast.ToStringE(value)
}

func coerceInteger(value any) (int64, error) {
	switch value := value.(type) {
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(value)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	case float64:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return 0, fmt.Errorf("%v is not an integer", value)
		}
		if value >= 1<<63 || value < -(1<<63) {
			return 0, fmt.Errorf("%v overflows int64", value)
		}
		return int64(value), nil
	case float32:
		return coerceInteger(float64(value))
	case uint64:
		if value > math.MaxInt64 {
			return 0, fmt.Errorf("%v overflows int64", value)
		}
		return int64(value), nil
	case uint:
		return coerceInteger(uint64(value))
	}
	return cast.ToInt64E(value)
}

func coerceFloat(value any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch value := value.(type) {
	case []byte:
		f, err = strconv.ParseFloat(strings.TrimSpace(string(value)), 64)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(value), 64)
	default:
		f, err = cast.ToFloat64E(value)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v cannot be represented in json", f)
	}
	return f, nil
}

var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

func coerceDecimal(value any) (string, error) {
	var text string
	switch value := value.(type) {
	case []byte:
		text = strings.TrimSpace(string(value))
	case string:
		text = strings.TrimSpace(value)
	case int64:
		return strconv.FormatInt(value, 10), nil
	default:
		f, err := coerceFloat(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	if jsonNumber.MatchString(text) {
		return text, nil
	}
	f, err := coerceFloat(text)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func coerceBoolean(value any) (bool, error) {
	switch value := value.(type) {
	case []byte:
		return coerceBoolean(string(value))
	case string:
		return strconv.ParseBool(strings.TrimSpace(value))
	case int64:
		return value != 0, nil
	}
	return cast.ToBoolE(value)
}

func coerceTime(value any) (string, error) {
	var (
		t   time.Time
		err error
	)
	switch value := value.(type) {
	case time.Time:
		t = value
	case []byte:
		t, err = cast.ToTimeE(string(value))
	default:
		t, err = cast.ToTimeE(value)
	}
	if err != nil {
		return "", err
	}
	return t.Format(time.RFC3339Nano), nil
}

var timeOfDayText = regexp.MustCompile(`^[0-9]{2}:[0-9]{2}(:[0-9]{2}(\.[0-9]+)?)?(Z|[+-][0-9]{2}(:?[0-9]{2})?)?$`)

// coerceTimeOfDay keeps wall clock text as sent. Drivers that scan into time.Time carry a zero date.
func coerceTimeOfDay(value any) (string, error) {
	switch value := value.(type) {
	case time.Time:
		return value.Format("15:04:05.999999999"), nil
	case []byte:
		return coerceTimeOfDay(string(value))
	case string:
		text := strings.TrimSpace(value)
		if !timeOfDayText.MatchString(text) {
			return "", fmt.Errorf("%q is not a time of day", value)
		}
		return text, nil
	}
	return "", fmt.Errorf("unsupported time of day value type %T", value)
}

func coerceBinary(value any) (string, error) {
	switch value := value.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(value), nil
	case string:
		return base64.StdEncoding.EncodeToString([]byte(value)), nil
	}
	return "", fmt.Errorf("unsupported binary value type %T", value)
}

var uuidText = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// coerceUUID accepts canonical text or the 16 byte mixed-endian layout sql server sends
func coerceUUID(value any) (string, error) {
	switch value := value.(type) {
	case []byte:
		if len(value) == 16 {
			var id mssql.UniqueIdentifier
			if err := id.Scan(value); err != nil {
				return "", err
			}
			return strings.ToLower(id.String()), nil
		}
		return coerceUUID(string(value))
	case string:
		text := strings.Trim(strings.TrimSpace(value), "{}")
		if !uuidText.MatchString(text) {
			return "", fmt.Errorf("%q is not a uuid", value)
		}
		return strings.ToLower(text), nil
	case [16]byte:
		return coerceUUID(value[:])
	}
	return "", fmt.Errorf("unsupported uuid value type %T", value)
}

func unknownValue(value any) (any, error) {
	switch value := value.(type) {
	case []byte:
		return string(value), nil
	case time.Time:
		return value.Format(time.RFC3339Nano), nil
	case string, bool, int64, int32, int, float32:
		return value, nil
	case float64:
		return coerceFloat(value)
	}
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(bits), nil
}

func setUnknown(doc *Document, key string, value any) error {
	v, err := unknownValue(value)
	if err != nil {
		return err
	}
	if raw, ok := v.(json.RawMessage); ok {
		return doc.SetRaw(key, string(raw))
	}
	return doc.Set(key, v)
}
