package inbound

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/goroutine"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/messaging"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
	"github.com/shandysiswandi/twofa/internal/shared/event"
)

const (
	defaultConsumerConcurrency = 10
	restartBackoffBase         = time.Second
	restartBackoffCap          = 30 * time.Second
)

type subscription struct {
	name    string // also the consumer group
	topic   string
	handler messaging.Handler
}

// RegisterMQConsumer starts every subscription listed in
// modules.twofactor.consumer_names. A consumer that stops with a broker
// error is restarted with capped exponential backoff until ctx is done.
func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	broker messaging.Consumer,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	h := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enabled := cfg.GetArray("modules.twofactor.consumer_names")
	concurrency := cfg.GetInt("modules.twofactor.consumer_concurrency")
	if concurrency < 1 {
		concurrency = defaultConsumerConcurrency
	}

	subs := []subscription{
		{name: event.UserDeletedConsumerTwoFactor, topic: event.UserDeletedDestination, handler: h.UserDeleted},
	}
	for _, sub := range subs {
		if !slices.Contains(enabled, sub.name) {
			continue
		}
		routine.Go(ctx, func(ctx context.Context) error {
			return consume(ctx, broker, sub, concurrency)
		})
	}
}

func consume(ctx context.Context, broker messaging.Consumer, sub subscription, concurrency int) error {
	backoff := retry.WithCappedDuration(restartBackoffCap, retry.NewExponential(restartBackoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		slog.InfoContext(ctx, "consumer started", "consumer", sub.name, "topic", sub.topic)
		err := broker.Consume(ctx, sub.topic, sub.handler,
			messaging.WithGroup(sub.name),
			messaging.WithAutoAck(true),
			messaging.WithConcurrency(concurrency),
			messaging.WithMaxInFlight(concurrency),
		)
		switch {
		case err == nil, ctx.Err() != nil:
			return nil
		case errors.Is(err, messaging.ErrClosed),
			errors.Is(err, messaging.ErrDestinationRequired),
			errors.Is(err, messaging.ErrHandlerRequired),
			errors.Is(err, messaging.ErrGroupRequired):
			return err
		}
		slog.WarnContext(ctx, "consumer stopped, restarting", "consumer", sub.name, "error", err)
		return retry.RetryableError(err)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
