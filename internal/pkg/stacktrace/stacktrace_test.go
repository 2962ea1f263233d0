package stacktrace

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalPaths(t *testing.T) {
	t.Parallel()

	stack := []byte(`goroutine 7 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
github.com/shandysiswandi/twofa/internal/twofactor/usecase.(*Usecase).SubmitCode(0xc000123)
	/src/twofa/internal/twofactor/usecase/login.go:88 +0x1a
net/http.HandlerFunc.ServeHTTP(0x0)
	/usr/local/go/src/net/http/server.go:2220 +0x29
github.com/shandysiswandi/twofa/internal/pkg/router.middlewareRecover.func1()
	/src/twofa/internal/pkg/router/middleware_recover.go:40
`)

	assert.Equal(t, []string{
		"internal/twofactor/usecase/login.go:88",
		"internal/pkg/router/middleware_recover.go:40",
	}, InternalPaths(stack))
	assert.Empty(t, InternalPaths(nil))
}

func TestInternalPaths_LiveStack(t *testing.T) {
	t.Parallel()

	paths := InternalPaths(debug.Stack())
	if assert.NotEmpty(t, paths) {
		assert.True(t, strings.HasPrefix(paths[0], "internal/pkg/stacktrace/stacktrace_test.go:"), paths[0])
	}
}
