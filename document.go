package sql2hub

import (
	"strings"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is a JSON object whose keys keep the order they were set in
type Document struct {
	result gjson.Result
}

// NewDocument creates a new empty json document
func NewDocument() *Document {
	return &Document{
		result: gjson.Parse("{}"),
	}
}

// NewDocumentFromBytes creates a new document from the given json bytes
func NewDocumentFromBytes(json []byte) (*Document, error) {
	if !gjson.ValidBytes(json) {
		return nil, errors.New(errors.Internal, "invalid json: %s", string(json))
	}
	d := &Document{
		result: gjson.ParseBytes(json),
	}
	if !d.result.IsObject() {
		return nil, errors.New(errors.Internal, "invalid document: not a json object")
	}
	return d, nil
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.result.Raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.result.Raw)
}

// Value returns the document as a map
func (d *Document) Value() map[string]any {
	return cast.ToStringMap(d.result.Value())
}

// Keys returns the top level keys of the document in order
func (d *Document) Keys() []string {
	var keys []string
	d.result.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Len returns the number of top level keys
func (d *Document) Len() int {
	return len(d.Keys())
}

// Get gets a top level field. Dots and wildcards in the key are treated literally.
func (d *Document) Get(key string) any {
	return d.result.Get(escapeKey(key)).Value()
}

// GetString gets a top level string field
func (d *Document) GetString(key string) string {
	return d.result.Get(escapeKey(key)).String()
}

// Set sets a top level field. New keys are appended after existing ones.
func (d *Document) Set(key string, val any) error {
	result, err := sjson.Set(d.result.Raw, escapeKey(key), val)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to set field %s", key)
	}
	d.result = gjson.Parse(result)
	return nil
}

// SetRaw sets a top level field to the given raw json value
func (d *Document) SetRaw(key string, raw string) error {
	if !gjson.Valid(raw) {
		return errors.New(errors.Internal, "invalid raw json for field %s: %s", key, raw)
	}
	result, err := sjson.SetRaw(d.result.Raw, escapeKey(key), raw)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to set field %s", key)
	}
	d.result = gjson.Parse(result)
	return nil
}

const pathSpecialChars = `\.*?|#@!=<>%:`

// escapeKey escapes gjson/sjson path syntax so column names are used verbatim as keys
func escapeKey(key string) string {
	if !strings.ContainsAny(key, pathSpecialChars) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(pathSpecialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
