package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/segmentio/kafka-go"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/messaging"
	"google.golang.org/api/option"
)

func (a *App) initMessaging() error {
	driver := a.config.GetString("messaging.driver")
	client, err := messaging.NewFromDriver(a.ctx, driver, messagingOptions(a.config))
	if err != nil {
		return fmt.Errorf("driver %q: %w", driver, err)
	}

	a.messaging = client
	a.onClose("messaging", func(context.Context) error { return client.Close() })
	return nil
}

func messagingOptions(c config.Config) messaging.FactoryOptions {
	return messaging.FactoryOptions{
		NSQ: messaging.NSQConfig{
			ProducerAddr:         c.GetString("messaging.nsq.producer_addr"),
			ConsumerNSQDAddrs:    c.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			ConsumerLookupdAddrs: c.GetArray("messaging.nsq.consumer_lookupd_addrs"),
			ProducerConfig:       nsqConfig(c, "messaging.nsq.producer_config."),
			ConsumerConfig:       nsqConfig(c, "messaging.nsq.consumer_config."),
		},
		NATS: messaging.NATSConfig{
			URL: c.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(c.GetString("messaging.nats.name")),
				nats.Timeout(c.GetSecond("messaging.nats.timeout_seconds")),
				nats.ReconnectWait(c.GetSecond("messaging.nats.reconnect_wait_seconds")),
				nats.MaxReconnects(c.GetInt("messaging.nats.max_reconnects")),
				nats.PingInterval(c.GetSecond("messaging.nats.ping_interval_seconds")),
				nats.MaxPingsOutstanding(c.GetInt("messaging.nats.max_pings_outstanding")),
				nats.RetryOnFailedConnect(c.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
		Kafka: messaging.KafkaConfig{
			Brokers: c.GetArray("messaging.kafka.brokers"),
			Dialer: &kafka.Dialer{
				ClientID:  c.GetString("messaging.kafka.client_id"),
				Timeout:   c.GetSecond("messaging.kafka.dial_timeout_seconds"),
				DualStack: true,
			},
		},
		PubSub: messaging.PubSubConfig{
			ProjectID:     c.GetString("messaging.pubsub.project_id"),
			ClientOptions: pubSubOptions(c),
		},
	}
}

// nsqConfig starts from go-nsq defaults and overrides what is set under
// prefix. Keys left at zero keep the default.
func nsqConfig(c config.Config, prefix string) *nsq.Config {
	cfg := nsq.NewConfig()
	setPositive(&cfg.MaxInFlight, c.GetInt(prefix+"max_in_flight"))
	setPositive(&cfg.MaxAttempts, c.GetUint16(prefix+"max_attempts"))
	setPositive(&cfg.DialTimeout, c.GetSecond(prefix+"dial_timeout_seconds"))
	setPositive(&cfg.ReadTimeout, c.GetSecond(prefix+"read_timeout_seconds"))
	setPositive(&cfg.WriteTimeout, c.GetSecond(prefix+"write_timeout_seconds"))
	setPositive(&cfg.LookupdPollInterval, c.GetSecond(prefix+"lookupd_poll_interval_seconds"))
	setPositive(&cfg.DefaultRequeueDelay, c.GetSecond(prefix+"default_requeue_delay_seconds"))
	setPositive(&cfg.MaxRequeueDelay, c.GetSecond(prefix+"max_requeue_delay_seconds"))
	return cfg
}

func setPositive[T ~int | ~uint16 | ~int64](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// pubSubOptions points the client at an emulator when messaging.pubsub.endpoint
// is set.
func pubSubOptions(c config.Config) []option.ClientOption {
	var opts []option.ClientOption
	if ep := strings.TrimSpace(c.GetString("messaging.pubsub.endpoint")); ep != "" {
		opts = append(opts, option.WithEndpoint(ep), option.WithoutAuthentication())
	}
	if file := strings.TrimSpace(c.GetString("messaging.pubsub.credentials_file")); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	return opts
}
