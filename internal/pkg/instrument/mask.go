package instrument

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

const masked = "***"

// DefaultMaskFields are never written to logs in clear, whatever the config
// says.
var DefaultMaskFields = []string{
	"secret", "code", "token", "device_token", "backup_codes", "provisioning_uri", "session_id",
	"authorization", "idempotency-key",
}

// Masker hides the values of sensitive keys in log payloads. Keys compare
// case-insensitively.
type Masker map[string]struct{}

// NewMasker returns a Masker for DefaultMaskFields plus extra.
func NewMasker(extra ...string) Masker {
	m := make(Masker, len(DefaultMaskFields)+len(extra))
	for _, f := range slices.Concat(DefaultMaskFields, extra) {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			m[f] = struct{}{}
		}
	}
	return m
}

func (m Masker) Hides(key string) bool {
	_, ok := m[strings.ToLower(key)]
	return ok
}

// Value walks decoded JSON (maps and slices) and replaces hidden keys.
func (m Masker) Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if m.Hides(k) {
				out[k] = masked
			} else {
				out[k] = m.Value(inner)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return m.Value(out)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = m.Value(inner)
		}
		return out
	default:
		return v
	}
}

// JSON masks a JSON document. ok is false when payload is not JSON.
func (m Masker) JSON(payload []byte) (string, bool) {
	if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false
	}
	out, err := json.Marshal(m.Value(doc))
	if err != nil {
		return "", false
	}
	return string(out), true
}

func (m Masker) Header(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if m.Hides(k) {
			out.Set(k, masked)
		}
	}
	return out
}

// Attr masks a log attribute, descending into groups, JSON strings and
// decoded maps.
func (m Masker) Attr(a slog.Attr) slog.Attr {
	if m.Hides(a.Key) {
		return slog.String(a.Key, masked)
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = m.Attr(ga)
		}
		a.Value = slog.GroupValue(out...)
	case slog.KindString:
		if s, ok := m.JSON([]byte(a.Value.String())); ok {
			a.Value = slog.StringValue(s)
		}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any, map[string]string, []any:
			a.Value = slog.AnyValue(m.Value(v))
		case []byte:
			if s, ok := m.JSON(v); ok {
				a.Value = slog.StringValue(s)
			}
		}
	}
	return a
}
