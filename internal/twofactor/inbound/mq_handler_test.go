package inbound

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/goroutine"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/messaging"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
	"github.com/shandysiswandi/twofa/internal/shared/event"
	"github.com/shandysiswandi/twofa/internal/twofactor/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	body    []byte
	headers []messaging.Header
}

func (m message) Body() []byte                  { return m.body }
func (m message) Key() []byte                   { return nil }
func (m message) Headers() []messaging.Header   { return m.headers }
func (m message) Attributes() map[string]string { return nil }
func (m message) ID() string                    { return "1" }
func (m message) Topic() string                 { return event.UserDeletedDestination }
func (m message) Timestamp() time.Time          { return time.Time{} }
func (m message) Ack(context.Context) error     { return nil }

func TestMQHandler_UserDeleted(t *testing.T) {
	t.Parallel()

	errStorage := errors.New("db down")

	tests := []struct {
		name      string
		body      string
		headers   []messaging.Header
		purgeErr  error
		wantErr   error
		wantCalls int32
		wantCID   string
	}{
		{
			name:      "purges and keeps correlation id",
			body:      `{"user_id":42}`,
			headers:   []messaging.Header{{Key: "cID", Value: []byte("corr-1")}},
			wantCalls: 1,
			wantCID:   "corr-1",
		},
		{
			name:      "malformed body is dropped",
			body:      `{not json`,
			wantCalls: 0,
		},
		{
			name:      "invalid user is dropped",
			body:      `{"user_id":0}`,
			purgeErr:  goerror.NewInvalidInput(errors.New("user_id must be positive")),
			wantCalls: 1,
		},
		{
			name:      "storage failure is returned for redelivery",
			body:      `{"user_id":42}`,
			purgeErr:  errStorage,
			wantErr:   errStorage,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			h := &MQHandler{
				uuid: uid.NewUUID(),
				ins:  instrument.NewNoop(),
				uc: &fakeUC{purge: func(ctx context.Context, in usecase.PurgeUserInput) error {
					calls.Add(1)
					assert.NotEmpty(t, instrument.GetCorrelationID(ctx))
					if tt.wantCID != "" {
						assert.Equal(t, tt.wantCID, instrument.GetCorrelationID(ctx))
						assert.Equal(t, int64(42), in.UserID)
					}
					return tt.purgeErr
				}},
			}

			err := h.UserDeleted(context.Background(), message{body: []byte(tt.body), headers: tt.headers})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestRegisterMQConsumer_MemoryBroker(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewViperFromBytes("yaml", []byte(`
modules:
  twofactor:
    consumer_names:
      - user_deleted_twofactor
`))
	require.NoError(t, err)

	broker := messaging.NewMemory()
	t.Cleanup(func() { _ = broker.Close() })

	purged := make(chan int64, 16)
	f := &fakeUC{purge: func(_ context.Context, in usecase.PurgeUserInput) error {
		purged <- in.UserID
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	routine := goroutine.NewManager(4)
	RegisterMQConsumer(ctx, cfg, routine, broker, uid.NewUUID(), f, instrument.NewNoop())

	// The consumer subscribes asynchronously; messages sent before that are not delivered.
	require.Eventually(t, func() bool {
		if _, err := broker.Publish(ctx, event.UserDeletedDestination, messaging.OutgoingMessage{Body: []byte(`{"user_id":7}`)}); err != nil {
			return false
		}
		select {
		case id := <-purged:
			return id == 7
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, routine.Wait())
}

func TestRegisterMQConsumer_DisabledConsumer(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewViperFromBytes("yaml", []byte("modules:\n  twofactor:\n    enabled: true\n"))
	require.NoError(t, err)

	routine := goroutine.NewManager(4)
	RegisterMQConsumer(context.Background(), cfg, routine, messaging.NewMemory(), uid.NewUUID(), &fakeUC{}, instrument.NewNoop())

	assert.Zero(t, routine.Running())
	require.NoError(t, routine.Wait())
}

type consumerFunc func(ctx context.Context, source string, h messaging.Handler, opts ...messaging.ConsumeOption) error

func (f consumerFunc) Consume(ctx context.Context, source string, h messaging.Handler, opts ...messaging.ConsumeOption) error {
	return f(ctx, source, h, opts...)
}

func TestConsume_RestartsAfterBrokerError(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := consumerFunc(func(ctx context.Context, _ string, _ messaging.Handler, _ ...messaging.ConsumeOption) error {
		if attempts.Add(1) == 1 {
			return errors.New("connection reset")
		}
		cancel()
		<-ctx.Done()
		return nil
	})

	sub := subscription{name: "test", topic: "topic", handler: func(context.Context, messaging.Message) error { return nil }}
	require.NoError(t, consume(ctx, broker, sub, 1))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestConsume_ClosedBrokerIsFinal(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	broker := consumerFunc(func(context.Context, string, messaging.Handler, ...messaging.ConsumeOption) error {
		attempts.Add(1)
		return messaging.ErrClosed
	})

	sub := subscription{name: "test", topic: "topic", handler: func(context.Context, messaging.Message) error { return nil }}
	require.ErrorIs(t, consume(context.Background(), broker, sub, 1), messaging.ErrClosed)
	assert.Equal(t, int32(1), attempts.Load())
}
