package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver names accepted by NewFromDriver.
const (
	DriverMemory       = "memory"
	DriverNSQ          = "nsq"
	DriverNATS         = "nats"
	DriverKafka        = "kafka"
	DriverGooglePubSub = "google-pubsub"
)

var ErrUnknownDriver = errors.New("messaging: unknown driver")

// FactoryOptions holds the settings of every driver; only the selected
// one is read.
type FactoryOptions struct {
	NSQ    NSQConfig
	NATS   NATSConfig
	Kafka  KafkaConfig
	PubSub PubSubConfig
}

// NewFromDriver opens the named driver. An empty name selects the
// in-process broker.
func NewFromDriver(ctx context.Context, driver string, opts FactoryOptions) (Messaging, error) {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverNSQ:
		return open(NewNSQ(opts.NSQ))
	case DriverNATS:
		return open(NewNATS(opts.NATS))
	case DriverKafka:
		return open(NewKafka(opts.Kafka))
	case DriverGooglePubSub:
		return open(NewPubSub(ctx, opts.PubSub))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, d)
	}
}

// open keeps a failed constructor from returning a typed nil interface.
func open[T Messaging](m T, err error) (Messaging, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}
