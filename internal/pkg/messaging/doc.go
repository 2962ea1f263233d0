// Package messaging publishes and consumes broker messages behind one small
// API so the 2FA event stream and the account-lifecycle consumers do not
// depend on the broker that carries them.
//
// Supported drivers are NSQ, NATS, Kafka, Google Pub/Sub and an in-process
// broker used for local runs and tests. Consumers name a group once with
// WithGroup; each driver maps it to its own concept (NSQ channel, NATS queue
// group, Kafka consumer group, Pub/Sub subscription).
package messaging
