// Package events publishes domain events (moves committed, games ending
// in a win/draw/abort) to Kafka, so downstream consumers such as rating
// recalculation or analytics can follow the game feed without the core
// depending on them.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// EventType names a domain event kind.
type EventType string

const (
	EventGameCreated   EventType = "game_created"
	EventPlayerJoined  EventType = "player_joined"
	EventMoveCommitted EventType = "move_committed"
	EventGameWin       EventType = "game_win"
	EventGameDraw      EventType = "game_draw"
	EventGameAborted   EventType = "game_aborted"
)

// GameEvent is the message format published to Kafka.
type GameEvent struct {
	Type      EventType `json:"type"`
	GameID    string    `json:"game_id"`
	RuleSetID string    `json:"rule_set_id"`
	PlayerID  string    `json:"player_id,omitempty"`
	Turn      int       `json:"turn"`
	Winner    string    `json:"winner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProducerConfig mirrors the teacher's Kafka producer configuration,
// trimmed to what a domain-event feed (not a betting audit trail) needs.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxRetries   int
	RetryBackoff time.Duration
	RequiredAcks sarama.RequiredAcks
}

// Publisher publishes GameEvents to Kafka using a synchronous producer.
// Publication failures are counted in a metric by the caller, never
// surfaced as a command error — the move or state transition that triggered the event
// already committed.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	mu   sync.Mutex
	sent int64
	fail int64
}

// NewPublisher dials Kafka with the given configuration.
func NewPublisher(cfg ProducerConfig) (*Publisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Retry.Max = cfg.MaxRetries
	saramaCfg.Producer.Retry.Backoff = cfg.RetryBackoff
	saramaCfg.Producer.RequiredAcks = cfg.RequiredAcks

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("events: failed to create Kafka producer: %w", err)
	}

	return &Publisher{producer: producer, topic: cfg.Topic}, nil
}

// Publish sends one event, keyed by game ID so a consumer group can keep
// per-game ordering.
func (p *Publisher) Publish(evt GameEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.GameID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(evt.Type)},
		},
		Timestamp: evt.Timestamp,
	}

	_, _, err = p.producer.SendMessage(msg)
	p.mu.Lock()
	if err != nil {
		p.fail++
	} else {
		p.sent++
	}
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("events: failed to send message: %w", err)
	}
	return nil
}

// Stats returns the number of events sent and failed so far.
func (p *Publisher) Stats() (sent, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.fail
}

// Close releases the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher discards every event; it satisfies the same shape as
// Publisher for tests and for running without a Kafka broker.
type NoopPublisher struct{}

func (NoopPublisher) Publish(GameEvent) error           { return nil }
func (NoopPublisher) Stats() (sent, failed int64)       { return 0, 0 }
func (NoopPublisher) Close() error                      { return nil }

// GamePublisher is the interface internal/facade and cmd/server depend on,
// satisfied by both Publisher and NoopPublisher.
type GamePublisher interface {
	Publish(GameEvent) error
	Close() error
}
