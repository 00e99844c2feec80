package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DRSN-tech/brand-images/internal/cfg"
	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/segmentio/kafka-go"
)

// MessageWriter — часть kafka.Writer, которой пользуется Producer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует события сопоставления изображений в Kafka.
type Producer struct {
	writer MessageWriter
	logger logger.Logger
	cfg    *cfg.KafkaCfg
	clock  func() time.Time
}

func NewProducer(logger logger.Logger, cfg *cfg.KafkaCfg) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    10,
		BatchTimeout: 500 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}

	return NewProducerWithWriter(writer, logger, cfg)
}

// NewProducerWithWriter позволяет подставить свой writer.
func NewProducerWithWriter(writer MessageWriter, logger logger.Logger, cfg *cfg.KafkaCfg) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		cfg:    cfg,
		clock:  time.Now,
	}
}

// matchEnvelope — формат сообщения в топике.
type matchEnvelope struct {
	EventID        string              `json:"event_id"`
	EventTimestamp int64               `json:"event_timestamp"`
	EventType      string              `json:"event_type"`
	Payload        *usecase.MatchEvent `json:"payload"`
}

// PublishMatch отправляет событие с ключом SKU, чтобы события одного товара шли в одну партицию.
func (p *Producer) PublishMatch(ctx context.Context, event *usecase.MatchEvent) error {
	value, err := p.GetPayloadBytes(event)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SKU),
		Value: value,
	}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (p *Producer) GetPayloadBytes(event *usecase.MatchEvent) ([]byte, error) {
	return json.Marshal(matchEnvelope{
		EventID:        uuid.NewString(),
		EventTimestamp: p.clock().UnixNano(),
		EventType:      "brand_images.matched",
		Payload:        event,
	})
}

func (p *Producer) EnsureTopic(timeout time.Duration) error {
	conn, err := kafka.Dial(p.cfg.NetworkMode, p.cfg.Brokers[0])
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(p.cfg.Topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		err := conn.CreateTopics(kafka.TopicConfig{
			Topic:             p.cfg.Topic,
			NumPartitions:     p.cfg.Partitions,
			ReplicationFactor: p.cfg.ReplicationFactor,
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("failed to create topic %s: %w", p.cfg.Topic, err))
		}
		return nil
	case <-time.After(timeout):
		_ = conn.Close()
		return e.Wrap(whereami.WhereAmI(), fmt.Errorf("timeout: %v, topic: %s", timeout, p.cfg.Topic))
	}
}

// Close сбрасывает буфер writer. Сигнатура совместима с closer.Func.
func (p *Producer) Close(_ context.Context) error {
	return p.writer.Close()
}
