// Package config reads runtime settings. Keys are dotted paths such as
// "twofactor.session.ttl_seconds"; a missing or malformed value yields the
// zero value of the requested type, so callers apply their own defaults.
package config

import (
	"io"
	"time"
)

// Durations stores integers and scales them by the unit in the getter name.
type Durations interface {
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration
	GetDay(key string) time.Duration
}

// Numbers groups the numeric getters.
type Numbers interface {
	GetInt(key string) int
	GetInt32(key string) int32
	GetInt64(key string) int64
	GetUint(key string) uint
	GetUint16(key string) uint16
	GetUint32(key string) uint32
	GetUint64(key string) uint64
	GetFloat64(key string) float64
}

// Config is the read side used by every component.
type Config interface {
	io.Closer
	Durations
	Numbers

	GetBool(key string) bool
	GetString(key string) string

	// GetBinary decodes a standard base64 value. Key material such as the
	// secret codec keys is stored this way.
	GetBinary(key string) []byte

	// GetArray accepts a YAML list or "a,b,c". Blank items are dropped.
	GetArray(key string) []string

	// GetMap accepts a YAML mapping or "k1:v1,k2:v2".
	GetMap(key string) map[string]string
}
