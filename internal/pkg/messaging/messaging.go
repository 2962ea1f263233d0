package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrClosed is returned by Publish and Consume after Close.
	ErrClosed = errors.New("messaging: client closed")
	// ErrDestinationRequired is returned when the topic or subject is empty.
	ErrDestinationRequired = errors.New("messaging: destination is required")
	// ErrHandlerRequired is returned when Consume is called with a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
	// ErrGroupRequired is returned by drivers that cannot consume without a group.
	ErrGroupRequired = errors.New("messaging: consumer group is required")
)

// Messaging can publish and consume.
type Messaging interface {
	io.Closer

	Publisher
	Consumer
}

type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// Consumer blocks in Consume until ctx is done, the client is closed or the
// broker connection fails.
type Consumer interface {
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes a received message. With WithAutoAck a nil error acks
// the message and a non-nil error asks the broker for redelivery when the
// driver supports it.
type Handler func(ctx context.Context, msg Message) error

// OutgoingMessage is what callers publish. Drivers without native headers
// (Pub/Sub) carry Headers as attributes; NSQ carries only the body.
type OutgoingMessage struct {
	Body []byte
	// Key partitions Kafka topics.
	Key     []byte
	Headers []Header
	// Attributes are Pub/Sub string attributes.
	Attributes map[string]string
	// OrderingKey orders Pub/Sub deliveries per key.
	OrderingKey string
}

type Header struct {
	Key   string
	Value []byte
}

type PublishResult struct {
	MessageID string
	Topic     string
	Timestamp time.Time
}

// Message is a received message.
type Message interface {
	Body() []byte
	Key() []byte
	Headers() []Header
	Attributes() map[string]string

	ID() string
	Topic() string
	Timestamp() time.Time

	// Ack settles the message. Calling it more than once is a no-op.
	Ack(ctx context.Context) error
}

// HeaderValue returns the first header named key, falling back to the
// attribute of the same name.
func HeaderValue(msg Message, key string) (string, bool) {
	for _, h := range msg.Headers() {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	v, ok := msg.Attributes()[key]
	return v, ok
}
