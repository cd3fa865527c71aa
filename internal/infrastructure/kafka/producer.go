package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DRSN-tech/image-indexer/internal/cfg"
	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/jitter"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/segmentio/kafka-go"
)

// Producer публикует события о завершённых прогонах индексации.
type Producer struct {
	writer *kafka.Writer
	logger logger.Logger
	cfg    *cfg.KafkaCfg
}

func NewProducer(logger logger.Logger, cfg *cfg.KafkaCfg) (*Producer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    10,
		BatchTimeout: 500 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warnf("Kafka producer error: %s", err.Error())
			}
		},
	}

	return &Producer{
		writer: writer,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// runFinishedEvent — полезная нагрузка события о завершённом прогоне.
type runFinishedEvent struct {
	EventID        string `json:"event_id"`
	EventTimestamp int64  `json:"event_timestamp"`
	RunID          string `json:"run_id"`
	Directory      string `json:"directory"`
	DocsCount      int    `json:"docs_count"`
	NumFeatures    int    `json:"num_features"`
	ModelVersion   string `json:"model_version"`
}

// PublishRunFinished публикует событие с retry-логикой и экспоненциальной задержкой.
func (p *Producer) PublishRunFinished(ctx context.Context, req *usecase.PublishRunReq) error {
	const (
		op         = "Producer.PublishRunFinished"
		maxRetries = 3
		baseJitter = 1 * time.Second
		maxJitter  = 15 * time.Second
	)

	value, err := json.Marshal(&runFinishedEvent{
		EventID:        uuid.NewString(),
		EventTimestamp: time.Now().UnixNano(),
		RunID:          req.RunID,
		Directory:      req.Directory,
		DocsCount:      req.DocsCount,
		NumFeatures:    req.NumFeatures,
		ModelVersion:   req.ModelVersion,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	msg := kafka.Message{
		Key:   []byte(req.RunID),
		Value: value,
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		if attempt == maxRetries-1 {
			break
		}

		sleepTime := jitter.ExponentialBackoff(baseJitter, maxJitter, attempt, jitter.DefaultJitter)
		p.logger.Warnf("publish failed, retrying in %v (attempt %d)", sleepTime, attempt+1)

		select {
		case <-time.After(sleepTime):
		case <-ctx.Done():
			return e.Wrap(op, ctx.Err())
		}
	}

	return e.Wrap(op, fmt.Errorf("all %d attempts failed: %w", maxRetries, err))
}

// EnsureTopic создаёт топик, если он ещё не существует.
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

func (p *Producer) Close() error {
	return p.writer.Close()
}
