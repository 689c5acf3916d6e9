package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const reportChangesChannel = "report-changes"

// subscriptionBuffer bounds how far a slow viewer may fall behind before
// events are dropped for it
const subscriptionBuffer = 64

// Subscription is a live handle on the report change stream. Close must
// run on viewer teardown so listeners do not leak across navigation.
type Subscription interface {
	Events() <-chan ReportChangeEvent
	Close() error
}

// Publisher fans report change events out to every subscribed viewer,
// across sessions and across processes when backed by redis.
type Publisher interface {
	Publish(ctx context.Context, event ReportChangeEvent) error
	Subscribe(ctx context.Context) (Subscription, error)
	Close() error
}

// =====================================================
// Redis-backed publisher
// =====================================================

// RedisPublisher implements Publisher over redis pub/sub
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher connects to redis and verifies the connection
func NewRedisPublisher(redisURL string, logger *zap.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisPublisher{client: client, logger: logger}, nil
}

// Publish broadcasts one event on the report-changes channel
func (p *RedisPublisher) Publish(ctx context.Context, event ReportChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal report change event: %w", err)
	}
	if err := p.client.Publish(ctx, reportChangesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish report change event: %w", err)
	}
	return nil
}

// Subscribe opens a live handle on the report change stream
func (p *RedisPublisher) Subscribe(ctx context.Context) (Subscription, error) {
	pubsub := p.client.Subscribe(ctx, reportChangesChannel)

	// Force the subscription to be established before returning so a
	// publish immediately after Subscribe is not missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to report changes: %w", err)
	}

	events := make(chan ReportChangeEvent, subscriptionBuffer)
	sub := &redisSubscription{pubsub: pubsub, events: events}

	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event ReportChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn("Dropping undecodable report change event", zap.Error(err))
				continue
			}
			select {
			case events <- event:
			default:
				p.logger.Warn("Dropping report change event for slow subscriber")
			}
		}
	}()

	return sub, nil
}

// Close releases the underlying redis client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan ReportChangeEvent
}

func (s *redisSubscription) Events() <-chan ReportChangeEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

// =====================================================
// In-process publisher
// =====================================================

// MemoryPublisher implements Publisher for single-process deployments
// and tests
type MemoryPublisher struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ReportChangeEvent
	closed bool
}

// NewMemoryPublisher creates an in-process publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{subs: make(map[int]chan ReportChangeEvent)}
}

// Publish fans the event out to every open subscription. Slow
// subscribers lose events rather than block the publisher.
func (p *MemoryPublisher) Publish(_ context.Context, event ReportChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	for _, ch := range p.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe opens a live handle on the report change stream
func (p *MemoryPublisher) Subscribe(_ context.Context) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("publisher is closed")
	}

	id := p.nextID
	p.nextID++
	ch := make(chan ReportChangeEvent, subscriptionBuffer)
	p.subs[id] = ch

	return &memorySubscription{publisher: p, id: id, events: ch}, nil
}

// Close tears down every open subscription
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
	return nil
}

func (p *MemoryPublisher) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.subs[id]; ok {
		close(ch)
		delete(p.subs, id)
	}
}

type memorySubscription struct {
	publisher *MemoryPublisher
	id        int
	events    chan ReportChangeEvent
	once      sync.Once
}

func (s *memorySubscription) Events() <-chan ReportChangeEvent {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s.id) })
	return nil
}
