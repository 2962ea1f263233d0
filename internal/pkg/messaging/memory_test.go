package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *received) handler(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *received) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func consume(t *testing.T, ctx context.Context, m *Memory, source, group string, h Handler) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		done <- m.Consume(ctx, source, h, WithGroup(group), WithConcurrency(2))
	}()

	// wait for the group to be registered
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, ok := m.groups[source][group]
		return ok
	}, time.Second, 5*time.Millisecond)

	return done
}

func TestMemory_FanOutPerGroup(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	var a, b received
	doneA := consume(t, ctx, m, "user_deleted", "twofactor", a.handler)
	doneB := consume(t, ctx, m, "user_deleted", "audit", b.handler)

	res, err := m.Publish(ctx, "user_deleted", OutgoingMessage{
		Body:       []byte(`{"user_id":1}`),
		Headers:    []Header{{Key: "cID", Value: []byte("abc")}},
		Attributes: map[string]string{"type": "user_deleted"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", res.MessageID)

	assert.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, time.Second, 5*time.Millisecond)

	a.mu.Lock()
	msg := a.msgs[0]
	a.mu.Unlock()
	assert.JSONEq(t, `{"user_id":1}`, string(msg.Body()))
	assert.Equal(t, "user_deleted", msg.Topic())
	assert.Equal(t, []Header{{Key: "cID", Value: []byte("abc")}}, msg.Headers())
	assert.Equal(t, "user_deleted", msg.Attributes()["type"])
	assert.NoError(t, msg.Ack(ctx))
	v, ok := HeaderValue(msg, "cID")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	v, ok = HeaderValue(msg, "type")
	assert.True(t, ok)
	assert.Equal(t, "user_deleted", v)

	cancel()
	assert.NoError(t, <-doneA)
	assert.NoError(t, <-doneB)
}

func TestMemory_SameGroupSharesMessages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	var r received
	done1 := consume(t, ctx, m, "topic", "g", r.handler)
	done2 := consume(t, ctx, m, "topic", "g", r.handler)

	for range 10 {
		_, err := m.Publish(ctx, "topic", OutgoingMessage{Body: []byte("x")})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return r.len() == 10 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return r.len() > 10 }, 50*time.Millisecond, 5*time.Millisecond)

	cancel()
	<-done1
	<-done2
}

func TestMemory_HandlerPanicAndErrorDoNotStopConsumer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	var r received
	calls := 0
	var mu sync.Mutex
	done := consume(t, ctx, m, "topic", "g", func(ctx context.Context, msg Message) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			panic("boom")
		case 2:
			return errors.New("failed")
		default:
			return r.handler(ctx, msg)
		}
	})

	for range 3 {
		_, err := m.Publish(ctx, "topic", OutgoingMessage{Body: []byte("x")})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return r.len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	assert.NoError(t, <-done)
}

func TestMemory_Closed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Publish(ctx, "topic", OutgoingMessage{})
	assert.ErrorIs(t, err, ErrClosed)

	err = m.Consume(ctx, "topic", func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	err = NewMemory().Consume(ctx, "topic", nil)
	assert.ErrorIs(t, err, ErrHandlerRequired)
}

func TestNewFromDriver(t *testing.T) {
	t.Parallel()

	m, err := NewFromDriver(context.Background(), DriverMemory, FactoryOptions{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	_, err = NewFromDriver(context.Background(), "carrier-pigeon", FactoryOptions{})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
