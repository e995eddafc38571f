package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards bus events to a Kafka topic from a background loop,
// so publishing never waits on the broker.
type KafkaSink struct {
	writer  messageWriter
	queue   chan Event
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, logger *zerolog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, 256, logger)
}

func newKafkaSink(w messageWriter, buffer int, logger *zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:  w,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "kafka_sink").Logger(),
	}
}

// Handle is an EventHandler. Events are dropped when the queue is full.
func (s *KafkaSink) Handle(event Event) error {
	select {
	case s.queue <- event:
	default:
		s.logger.Warn().Str("event_type", event.Type).Str("event_id", event.ID).Msg("kafka queue full, dropping event")
	}
	return nil
}

// Run drains the queue until ctx is done, then flushes what is left and closes the writer.
func (s *KafkaSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			if err := s.writer.Close(); err != nil {
				s.logger.Error().Err(err).Msg("close kafka writer")
			}
			return
		case ev := <-s.queue:
			s.write(context.Background(), ev)
		}
	}
}

func (s *KafkaSink) drain() {
	for {
		select {
		case ev := <-s.queue:
			s.write(context.Background(), ev)
		default:
			return
		}
	}
}

func (s *KafkaSink) write(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.Key),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("failed to forward event")
	}
}
