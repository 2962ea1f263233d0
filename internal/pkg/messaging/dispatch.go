package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.uber.org/atomic"

	"github.com/shandysiswandi/twofa/internal/pkg/stacktrace"
)

// settle tracks whether a received message was acked or nacked.
type settle struct {
	done atomic.Bool
}

// claim reports true for the first caller only.
func (s *settle) claim() bool { return s.done.CompareAndSwap(false, true) }

func (s *settle) settled() bool { return s.done.Load() }

type delivery interface {
	Message
	nack(ctx context.Context) error
	settled() bool
}

// dispatch runs handler for one message. A panicking handler counts as a
// failed one. The returned error is from settling, never from the handler.
func dispatch(ctx context.Context, driver string, handler Handler, msg delivery, autoAck bool) error {
	herr := callHandler(ctx, driver, handler, msg)
	if herr != nil {
		slog.WarnContext(ctx, "messaging handler failed",
			"driver", driver, "topic", msg.Topic(), "message_id", msg.ID(), "error", herr)
	}

	if !autoAck || msg.settled() {
		return nil
	}
	if herr == nil {
		return msg.Ack(ctx)
	}
	return msg.nack(ctx)
}

func callHandler(ctx context.Context, driver string, handler Handler, msg Message) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", paths)
			} else {
				slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", string(stack))
			}
			err = fmt.Errorf("messaging: panic in %s handler: %v", driver, rvr)
		}
	}()

	return handler(ctx, msg)
}

func logSettleErr(ctx context.Context, driver string, err error) {
	slog.WarnContext(ctx, "messaging settle failed", "driver", driver, "error", err)
}
