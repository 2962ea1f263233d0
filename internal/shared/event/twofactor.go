package event

const TwoFactorEventDestination string = "twofactor_events"

// TwoFactorMessage is published on every security-relevant change of a
// user's second factor. It never carries secrets, codes or tokens.
type TwoFactorMessage struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	ActorID    int64  `json:"actor_id,omitempty"`
	DeviceID   int64  `json:"device_id,omitempty"`
	Method     string `json:"method,omitempty"`
	OccurredAt int64  `json:"occurred_at"`
}
