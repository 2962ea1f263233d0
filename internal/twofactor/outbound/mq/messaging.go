package mq

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/messaging"
	"github.com/shandysiswandi/twofa/internal/shared/event"
	"github.com/shandysiswandi/twofa/internal/twofactor/usecase"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) PublishTwoFactorEvent(ctx context.Context, ev usecase.Event) error {
	ctx, span := m.ins.Tracer("twofactor.outbound.mq").Start(ctx, "PublishTwoFactorEvent")
	defer span.End()

	body, err := json.Marshal(event.TwoFactorMessage{
		Type:       string(ev.Type),
		UserID:     ev.UserID,
		ActorID:    ev.ActorID,
		DeviceID:   ev.DeviceID,
		Method:     ev.Method,
		OccurredAt: ev.OccurredAt.Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.TwoFactorEventDestination, messaging.OutgoingMessage{
		Body:        body,
		Key:         []byte(strconv.FormatInt(ev.UserID, 10)),
		OrderingKey: strconv.FormatInt(ev.UserID, 10),
		Headers:     []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
		Attributes:  map[string]string{"type": string(ev.Type)},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
