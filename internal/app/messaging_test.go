package app

import (
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNSQConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewViperFromBytes("yaml", []byte(`
messaging:
  nsq:
    consumer_config:
      max_in_flight: 10
      max_attempts: 5
      read_timeout_seconds: 30
`))
	require.NoError(t, err)

	defaults := nsq.NewConfig()
	got := nsqConfig(cfg, "messaging.nsq.consumer_config.")

	assert.Equal(t, 10, got.MaxInFlight)
	assert.Equal(t, uint16(5), got.MaxAttempts)
	assert.Equal(t, 30*time.Second, got.ReadTimeout)
	assert.Equal(t, defaults.DialTimeout, got.DialTimeout)
	assert.Equal(t, defaults.MaxRequeueDelay, got.MaxRequeueDelay)
}

func TestPubSubOptions(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewViperFromBytes("yaml", []byte("messaging:\n  pubsub:\n    endpoint: localhost:8085\n"))
	require.NoError(t, err)
	assert.Len(t, pubSubOptions(cfg), 2)

	empty, err := config.NewViperFromBytes("yaml", []byte("app:\n  tz: UTC\n"))
	require.NoError(t, err)
	assert.Empty(t, pubSubOptions(empty))
}

//nolint:paralleltest // mutates the process environment
func TestConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LOCAL", "")
	assert.Equal(t, "/config/config.yaml", configPath())

	t.Setenv("LOCAL", "true")
	assert.Equal(t, "./config/config.yaml", configPath())

	t.Setenv("CONFIG_PATH", "/etc/twofa.yaml")
	assert.Equal(t, "/etc/twofa.yaml", configPath())
}
