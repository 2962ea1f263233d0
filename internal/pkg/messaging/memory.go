package messaging

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
)

const memoryBuffer = 64

// Memory is an in-process broker for local runs and tests. Every consumer
// group on a destination receives its own copy of a message; within a group
// messages are spread over the group's workers. Nothing is persisted and
// messages published before a group subscribes are not delivered to it.
type Memory struct {
	mu     sync.Mutex
	seq    uint64
	groups map[string]map[string]chan *memoryMessage
	closed bool
	done   chan struct{}
}

// NewMemory constructs an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]map[string]chan *memoryMessage),
		done:   make(chan struct{}),
	}
}

// Close stops every running Consume call.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Publish delivers msg to every group subscribed to destination.
func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return PublishResult{}, ErrClosed
	}
	m.seq++
	id := strconv.FormatUint(m.seq, 10)
	targets := slices.Collect(maps.Values(m.groups[destination]))
	m.mu.Unlock()

	now := time.Now()
	for _, ch := range targets {
		mm := &memoryMessage{
			id:         id,
			topic:      destination,
			body:       slices.Clone(msg.Body),
			key:        slices.Clone(msg.Key),
			headers:    slices.Clone(msg.Headers),
			attributes: maps.Clone(msg.Attributes),
			timestamp:  now,
		}
		select {
		case ch <- mm:
		case <-ctx.Done():
			return PublishResult{}, ctx.Err()
		case <-m.done:
			return PublishResult{}, ErrClosed
		}
	}

	return PublishResult{MessageID: id, Topic: destination, Timestamp: now}, nil
}

// Consume blocks until ctx is cancelled or the broker is closed. Failed
// messages are logged and not redelivered.
func (m *Memory) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if handler == nil {
		return ErrHandlerRequired
	}

	co := newConsumeOptions(opts...)
	group := co.group

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.groups[source] == nil {
		m.groups[source] = make(map[string]chan *memoryMessage)
	}
	ch, ok := m.groups[source][group]
	if !ok {
		ch = make(chan *memoryMessage, memoryBuffer)
		m.groups[source][group] = ch
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for range co.concurrency {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case mm := <-ch:
					_ = dispatch(ctx, "memory", handler, mm, co.autoAck)
				}
			}
		})
	}
	wg.Wait()

	return nil
}

type memoryMessage struct {
	settle

	id         string
	topic      string
	body       []byte
	key        []byte
	headers    []Header
	attributes map[string]string
	timestamp  time.Time
}

func (m *memoryMessage) Body() []byte                  { return m.body }
func (m *memoryMessage) Key() []byte                   { return m.key }
func (m *memoryMessage) Headers() []Header             { return m.headers }
func (m *memoryMessage) Attributes() map[string]string { return m.attributes }
func (m *memoryMessage) ID() string                    { return m.id }
func (m *memoryMessage) Topic() string                 { return m.topic }
func (m *memoryMessage) Timestamp() time.Time          { return m.timestamp }
func (m *memoryMessage) Ack(context.Context) error     { m.claim(); return nil }
func (m *memoryMessage) nack(context.Context) error    { m.claim(); return nil }
