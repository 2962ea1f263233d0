// Package valueobject holds small column types shared by entities and the
// postgres layer.
package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ErrScanValueNotBytes is returned when a jsonb column scans into something
// other than bytes, text or an already decoded object.
var ErrScanValueNotBytes = errors.New("valueobject: jsonmap scan value is not []byte")

// JSONMap is a free-form jsonb object, such as trusted device metadata.
// @swaggertype object
type JSONMap map[string]any

// Value writes a nil map as "{}".
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = JSONMap{}
		return nil
	case map[string]any:
		*j = v
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrScanValueNotBytes
	}

	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*j = out
	return nil
}

// SetNonEmpty stores v under key unless v is blank.
func (j JSONMap) SetNonEmpty(key, v string) {
	if v != "" {
		j[key] = v
	}
}

// GetString returns "" when key is missing or not a string.
func (j JSONMap) GetString(key string) string {
	s, _ := j[key].(string)
	return s
}
