package sql2hub_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/autom8ter/sql2hub"
	"github.com/autom8ter/sql2hub/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	t.Run("null columns are omitted", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Id", Type: sql2hub.TypeInteger},
			{Name: "Email", Type: sql2hub.TypeString, Nullable: true},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{int64(1), nil})
		assert.Len(t, errs, 0)
		assert.Equal(t, `{"Id":1}`, doc.String())
		assert.Nil(t, doc.Get("Email"))
	})
	t.Run("all null row is an empty object", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Id", Type: sql2hub.TypeInteger, Nullable: true},
			{Name: "Email", Type: sql2hub.TypeString, Nullable: true},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{nil, nil})
		assert.Len(t, errs, 0)
		assert.Equal(t, `{}`, doc.String())
	})
	t.Run("keys follow schema order", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Zone", Type: sql2hub.TypeString},
			{Name: "Active", Type: sql2hub.TypeBoolean},
			{Name: "Reading", Type: sql2hub.TypeDecimal},
			{Name: "Id", Type: sql2hub.TypeInteger},
			{Name: "Recorded", Type: sql2hub.TypeTime},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{
			[]byte("north"),
			true,
			[]byte("12.50"),
			int64(7),
			time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		})
		assert.Len(t, errs, 0)
		assert.Equal(t, []string{"Zone", "Active", "Reading", "Id", "Recorded"}, doc.Keys())
		assert.Equal(t, `{"Zone":"north","Active":true,"Reading":12.50,"Id":7,"Recorded":"2024-01-02T03:04:05Z"}`, doc.String())
	})
	t.Run("failed coercion drops the field", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Id", Type: sql2hub.TypeInteger},
			{Name: "Temperature", Type: sql2hub.TypeFloat},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{"seven", 21.5})
		require.Len(t, errs, 1)
		assert.Equal(t, "Id", errs[0].Column)
		assert.Equal(t, sql2hub.TypeInteger, errs[0].Type)
		assert.Equal(t, "seven", errs[0].Value)
		assert.Equal(t, errors.Coercion, errs[0].Code())
		assert.NotNil(t, errs[0].Unwrap())
		assert.Contains(t, errs[0].Error(), "Id")
		assert.Equal(t, "Id", errs[0].Tags()["column"])
		assert.Equal(t, `{"Temperature":21.5}`, doc.String())
	})
	t.Run("time of day columns keep their text", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "ShiftStart", Type: sql2hub.TypeTagOf("TIME", nil)},
			{Name: "ShiftEnd", Type: sql2hub.TypeTagOf("TIMETZ", nil)},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{"06:00:00", "14:00:00.25+02"})
		assert.Len(t, errs, 0)
		assert.Equal(t, `{"ShiftStart":"06:00:00","ShiftEnd":"14:00:00.25+02"}`, doc.String())
	})
	t.Run("short row", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Id", Type: sql2hub.TypeInteger},
			{Name: "Email", Type: sql2hub.TypeString},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{int64(1)})
		assert.Len(t, errs, 0)
		assert.Equal(t, `{"Id":1}`, doc.String())
	})
	t.Run("unknown values", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Shape", Type: sql2hub.TypeUnknown},
			{Name: "Label", Type: sql2hub.TypeUnknown},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{map[string]any{"x": 1}, []byte("abc")})
		assert.Len(t, errs, 0)
		assert.Equal(t, `{"Shape":{"x":1},"Label":"abc"}`, doc.String())
	})
	t.Run("projection is valid json", func(t *testing.T) {
		schema := sql2hub.Schema{
			{Name: "Note", Type: sql2hub.TypeString},
			{Name: "Payload", Type: sql2hub.TypeBinary},
		}
		doc, errs := sql2hub.Project(schema, sql2hub.RawRow{"line\nbreak \"quoted\" \\ tab\t", []byte{0, 255}})
		assert.Len(t, errs, 0)
		var decoded map[string]any
		require.Nil(t, json.Unmarshal(doc.Bytes(), &decoded))
		assert.Equal(t, "line\nbreak \"quoted\" \\ tab\t", decoded["Note"])
		assert.Equal(t, "AP8=", decoded["Payload"])
	})
}

func TestCoerce(t *testing.T) {
	type testCase struct {
		name     string
		tag      sql2hub.TypeTag
		value    any
		expected any
		err      bool
	}
	recorded := time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.UTC)
	for _, tc := range []testCase{
		{"nil", sql2hub.TypeString, nil, nil, false},
		{"string bytes", sql2hub.TypeString, []byte("abc"), "abc", false},
		{"string int", sql2hub.TypeString, int64(5), "5", false},
		{"string time", sql2hub.TypeString, recorded, "2024-01-02T03:04:05.6Z", false},
		{"integer", sql2hub.TypeInteger, int64(42), int64(42), false},
		{"integer int32", sql2hub.TypeInteger, int32(42), int64(42), false},
		{"integer text", sql2hub.TypeInteger, []byte(" 42 "), int64(42), false},
		{"integer integral float", sql2hub.TypeInteger, float64(3), int64(3), false},
		{"integer fractional float", sql2hub.TypeInteger, 3.5, nil, true},
		{"integer text float", sql2hub.TypeInteger, "3.5", nil, true},
		{"integer garbage", sql2hub.TypeInteger, "seven", nil, true},
		{"integer float overflow", sql2hub.TypeInteger, 1e20, nil, true},
		{"integer float underflow", sql2hub.TypeInteger, -1e30, nil, true},
		{"integer float at max", sql2hub.TypeInteger, float64(1 << 63), nil, true},
		{"integer float at min", sql2hub.TypeInteger, float64(-(1 << 63)), int64(math.MinInt64), false},
		{"integer uint64", sql2hub.TypeInteger, uint64(7), int64(7), false},
		{"integer uint64 overflow", sql2hub.TypeInteger, uint64(1<<63 + 5), nil, true},
		{"integer uint overflow", sql2hub.TypeInteger, ^uint(0), nil, true},
		{"float", sql2hub.TypeFloat, 21.5, 21.5, false},
		{"float float32", sql2hub.TypeFloat, float32(0.5), 0.5, false},
		{"float text", sql2hub.TypeFloat, []byte("21.5"), 21.5, false},
		{"float nan", sql2hub.TypeFloat, math.NaN(), nil, true},
		{"float inf", sql2hub.TypeFloat, math.Inf(1), nil, true},
		{"decimal literal", sql2hub.TypeDecimal, []byte("12345678901234567890.123456789"), "12345678901234567890.123456789", false},
		{"decimal padded", sql2hub.TypeDecimal, " 1.50 ", "1.50", false},
		{"decimal int", sql2hub.TypeDecimal, int64(5), "5", false},
		{"decimal float", sql2hub.TypeDecimal, 0.1, "0.1", false},
		{"decimal leading plus", sql2hub.TypeDecimal, "+2.5", "2.5", false},
		{"decimal garbage", sql2hub.TypeDecimal, "abc", nil, true},
		{"boolean", sql2hub.TypeBoolean, true, true, false},
		{"boolean int", sql2hub.TypeBoolean, int64(1), true, false},
		{"boolean text", sql2hub.TypeBoolean, []byte("0"), false, false},
		{"boolean garbage", sql2hub.TypeBoolean, "yes", nil, true},
		{"time", sql2hub.TypeTime, recorded, "2024-01-02T03:04:05.6Z", false},
		{"time text", sql2hub.TypeTime, "2024-01-02", "2024-01-02T00:00:00Z", false},
		{"time garbage", sql2hub.TypeTime, "yesterday", nil, true},
		{"time of day text", sql2hub.TypeTimeOfDay, "12:34:56", "12:34:56", false},
		{"time of day fraction", sql2hub.TypeTimeOfDay, []byte("12:34:56.123456"), "12:34:56.123456", false},
		{"time of day offset", sql2hub.TypeTimeOfDay, "12:34:56+02", "12:34:56+02", false},
		{"time of day zero date", sql2hub.TypeTimeOfDay, time.Date(1, 1, 1, 12, 34, 56, 500000000, time.UTC), "12:34:56.5", false},
		{"time of day garbage", sql2hub.TypeTimeOfDay, "noon", nil, true},
		{"binary", sql2hub.TypeBinary, []byte{1, 2, 3}, "AQID", false},
		{"binary int", sql2hub.TypeBinary, int64(1), nil, true},
		{"uuid sql server bytes", sql2hub.TypeUUID, []byte{
			0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66,
			0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
		}, "00112233-4455-6677-8899-aabbccddeeff", false},
		{"uuid text", sql2hub.TypeUUID, "6F9619FF-8B86-D011-B42D-00C04FC964FF", "6f9619ff-8b86-d011-b42d-00c04fc964ff", false},
		{"uuid braces", sql2hub.TypeUUID, []byte("{6f9619ff-8b86-d011-b42d-00c04fc964ff}"), "6f9619ff-8b86-d011-b42d-00c04fc964ff", false},
		{"uuid garbage", sql2hub.TypeUUID, "not-a-uuid", nil, true},
		{"unknown", sql2hub.TypeUnknown, int64(1), int64(1), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sql2hub.Coerce(tc.tag, tc.value)
			if tc.err {
				assert.NotNil(t, err)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
