package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// StringList is a list field that the backend may deliver either as a JSON
// array or as a single comma-separated string. It is normalized at decode time
// so callers never branch on the shape.
type StringList []string

// ParseStringList splits a comma-separated value, trimming blanks.
func ParseStringList(raw string) StringList {
	parts := strings.Split(raw, ",")
	out := make(StringList, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = StringList{}
		return nil
	}

	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("string list: %w", err)
		}
		*l = ParseStringList(raw)
		return nil
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	out := make(StringList, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan reads a Postgres text[] column.
func (l *StringList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// ID is an identifier that may arrive as a JSON number or a JSON string.
// Comparisons go through String so that 7 and "7" are the same participant.
type ID string

func NewID(v int64) ID {
	return ID(strconv.FormatInt(v, 10))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as JSON numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	s := id.String()
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (id ID) String() string {
	return strings.TrimSpace(string(id))
}

// Equal compares two ids after normalization. Empty ids never match.
func (id ID) Equal(other ID) bool {
	a, b := id.String(), other.String()
	return a != "" && a == b
}

// Int64 parses the id as a numeric database key.
func (id ID) Int64() (int64, error) {
	return strconv.ParseInt(id.String(), 10, 64)
}
