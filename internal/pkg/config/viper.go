package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides: twofactor.session.max_attempts
// is read from TWOFA_TWOFACTOR_SESSION_MAX_ATTEMPTS when set.
const EnvPrefix = "TWOFA"

// ErrConfigTypeRequired is returned by NewViperFromBytes without a format.
var ErrConfigTypeRequired = errors.New("config: type is required")

// Viper is the Config used by the service.
type Viper struct {
	v *viper.Viper
}

func withEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewViper reads file, whose format follows its extension, and keeps
// watching it. A reload that fails to parse keeps the previous values.
func NewViper(file string) (*Viper, error) {
	v := withEnv()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", file, err)
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		slog.Info("config: file changed, reloaded", "path", ev.Name, "op", ev.Op.String())
	})
	v.WatchConfig()

	return &Viper{v: v}, nil
}

// NewViperFromBytes parses data in the given format ("yaml", "json", ...).
// Tests build their configuration this way.
func NewViperFromBytes(format string, data []byte) (*Viper, error) {
	format = strings.TrimSpace(format)
	if format == "" {
		return nil, ErrConfigTypeRequired
	}

	v := withEnv()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", format, err)
	}

	return &Viper{v: v}, nil
}

func (c *Viper) GetBool(key string) bool            { return c.v.GetBool(key) }
func (c *Viper) GetString(key string) string        { return c.v.GetString(key) }
func (c *Viper) GetInt(key string) int              { return c.v.GetInt(key) }
func (c *Viper) GetInt32(key string) int32          { return c.v.GetInt32(key) }
func (c *Viper) GetInt64(key string) int64          { return c.v.GetInt64(key) }
func (c *Viper) GetUint(key string) uint            { return c.v.GetUint(key) }
func (c *Viper) GetUint16(key string) uint16        { return c.v.GetUint16(key) }
func (c *Viper) GetUint32(key string) uint32        { return c.v.GetUint32(key) }
func (c *Viper) GetUint64(key string) uint64        { return c.v.GetUint64(key) }
func (c *Viper) GetFloat64(key string) float64      { return c.v.GetFloat64(key) }
func (c *Viper) GetSecond(key string) time.Duration { return c.scaled(key, time.Second) }
func (c *Viper) GetMinute(key string) time.Duration { return c.scaled(key, time.Minute) }
func (c *Viper) GetDay(key string) time.Duration    { return c.scaled(key, 24*time.Hour) }

func (c *Viper) scaled(key string, unit time.Duration) time.Duration {
	return time.Duration(c.v.GetInt64(key)) * unit
}

// GetBinary decodes a base64 value. A malformed value reads as nil.
func (c *Viper) GetBinary(key string) []byte {
	data, err := base64.StdEncoding.DecodeString(c.v.GetString(key))
	if err != nil {
		return nil
	}
	return data
}

// GetArray accepts YAML sequences as well as comma separated strings.
// Blank items are dropped.
func (c *Viper) GetArray(key string) []string {
	var raw []string
	switch val := c.v.Get(key).(type) {
	case nil:
		return nil
	case []any, []string:
		raw = c.v.GetStringSlice(key)
	default:
		raw = strings.Split(fmt.Sprint(val), ",")
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetMap reads a YAML mapping, or a list of "k:v" pairs.
func (c *Viper) GetMap(key string) map[string]string {
	if m := c.v.GetStringMapString(key); len(m) > 0 {
		return m
	}

	m := make(map[string]string)
	for _, pair := range c.GetArray(key) {
		if k, val, ok := strings.Cut(pair, ":"); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}
	return m
}

// Close is a no-op; viper has no way to stop its watcher.
func (c *Viper) Close() error { return nil }
