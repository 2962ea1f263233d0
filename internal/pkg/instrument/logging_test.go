package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, fields ...string) *slog.Logger {
	return slog.New(&contextHandler{
		Handler: &maskHandler{
			next:   slog.NewJSONHandler(buf, nil),
			masker: NewMasker(fields...),
		},
		serviceName: "twofa",
	})
}

func TestMaskHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newTestLogger(&buf, " Email ")

	ctx := SetCorrelationID(context.Background(), "cid-1")
	log.InfoContext(ctx, "login",
		"user_id", 7,
		"code", "123456",
		"email", "a@b.c",
		"payload", `{"device_token":"abc","label":"Laptop"}`,
		slog.Group("req", slog.String("secret", "JBSWY3DP")),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.InDelta(t, 7, line["user_id"], 0)
	assert.Equal(t, "***", line["code"])
	assert.Equal(t, "***", line["email"])
	assert.JSONEq(t, `{"device_token":"***","label":"Laptop"}`, line["payload"].(string))
	assert.Equal(t, map[string]any{"secret": "***"}, line["req"])
	assert.Equal(t, "cid-1", line["_cID"])
	assert.Equal(t, "twofa", line["service"])
}

func TestMaskHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newTestLogger(&buf).With("token", "opaque", "user_id", 9)
	log.Info("device trusted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "***", line["token"])
	assert.InDelta(t, 9, line["user_id"], 0)
}

func TestMasker(t *testing.T) {
	t.Parallel()

	m := NewMasker("Email", " ")

	assert.True(t, m.Hides("EMAIL"))
	assert.True(t, m.Hides("Authorization"))
	assert.False(t, m.Hides("label"))

	got, ok := m.JSON([]byte(`[{"code":"123456","n":1}]`))
	require.True(t, ok)
	assert.JSONEq(t, `[{"code":"***","n":1}]`, got)

	_, ok = m.JSON([]byte("plain text"))
	assert.False(t, ok)

	h := http.Header{}
	h.Set("Authorization", "Bearer x")
	h.Set("Accept", "application/json")
	masked := m.Header(h)
	assert.Equal(t, "***", masked.Get("Authorization"))
	assert.Equal(t, "application/json", masked.Get("Accept"))
	assert.Equal(t, "Bearer x", h.Get("Authorization"))

	assert.Equal(t, map[string]any{"secret": "***", "label": "x"},
		m.Value(map[string]string{"secret": "s", "label": "x"}))
}

func TestRenameAttr(t *testing.T) {
	t.Parallel()

	src := &slog.Source{File: "/src/twofa/internal/twofactor/usecase/login.go", Line: 12}
	got := renameAttr(nil, slog.Any(slog.SourceKey, src))
	assert.Equal(t, "file", got.Key)
	assert.Equal(t, "internal/twofactor/usecase/login.go:12", got.Value.String())

	dropped := renameAttr(nil, slog.Any(slog.SourceKey, &slog.Source{File: "/go/pkg/mod/x.go"}))
	assert.True(t, dropped.Equal(slog.Attr{}))

	assert.Equal(t, "severity", renameAttr(nil, slog.String(slog.LevelKey, "INFO")).Key)
}

func TestCorrelationID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetCorrelationID(context.Background()))
	assert.Equal(t, "x", GetCorrelationID(SetCorrelationID(context.Background(), "x")))
}

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	ins, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, ins.Tracer("t"))
	assert.NotNil(t, ins.Meter("m"))
	assert.NoError(t, ins.Shutdown(context.Background()))
}
