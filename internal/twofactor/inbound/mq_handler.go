package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/messaging"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
	"github.com/shandysiswandi/twofa/internal/shared/event"
	"github.com/shandysiswandi/twofa/internal/twofactor/usecase"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID, ok := messaging.HeaderValue(msg, keyOfCorrelationID); ok && cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// UserDeleted purges the two-factor data of a removed account. Poison
// messages are logged and dropped; storage failures are returned so the
// broker can redeliver.
func (h *MQHandler) UserDeleted(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("twofactor.inbound.mq").Start(ctx, "UserDeleted")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: user deleted", "msg_body", string(body))

	var payload event.UserDeletedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of user deleted", "msg_body", string(body), "error", err)
		return nil
	}

	err := h.uc.PurgeUser(ctx, usecase.PurgeUserInput{UserID: payload.UserID})
	var gerr *goerror.Error
	if errors.As(err, &gerr) && gerr.Type() == goerror.TypeValidation {
		slog.ErrorContext(ctx, "invalid user deleted message", "msg_body", string(body), "error", err)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge two-factor data", "user_id", payload.UserID, "error", err)
		return err
	}

	return nil
}
