// Package kafka ingests score events from a stream so backend services
// can report scores without going through the chat platform or the HTTP
// API.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"coindash-bot/internal/config"
	"coindash-bot/internal/ingest"
	"coindash-bot/internal/model"
)

// ScoreEvent is the wire format of one message on the score topic.
type ScoreEvent struct {
	ContextID   string `json:"context_id"`
	PlayerID    int64  `json:"player_id"`
	DisplayName string `json:"display_name,omitempty"`
	Score       int64  `json:"score"`
}

// Submitter applies a validated report. Satisfied by service.Reconciler.
type Submitter interface {
	Reconcile(ctx context.Context, report *model.ScoreReport) (*model.Outcome, error)
}

// Consumer drains the score topic into the reconciliation engine.
type Consumer struct {
	cfg       *config.KafkaConfig
	submitter Submitter
	group     sarama.ConsumerGroup
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	ready     chan struct{}
}

// NewConsumer creates a consumer group member for the score topic.
func NewConsumer(cfg *config.KafkaConfig, submitter Submitter) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		cfg:       cfg,
		submitter: submitter,
		group:     group,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
	}, nil
}

// Start begins consuming. Blocks until the first session is set up.
func (c *Consumer) Start() error {
	log.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group_id", c.cfg.GroupID).
		Msg("Starting score stream consumer")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &groupHandler{consumer: c, ready: c.ready}

			if err := c.group.Consume(c.ctx, []string{c.cfg.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				log.Error().Err(err).Msg("Score stream consume error")
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan struct{})
		}
	}()

	<-c.ready
	log.Info().Msg("Score stream consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Score stream consumer group error")
			}
		}
	}()

	return nil
}

// Stop cancels the session and closes the group.
func (c *Consumer) Stop() error {
	log.Info().Msg("Stopping score stream consumer")
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

type groupHandler struct {
	consumer *Consumer
	ready    chan struct{}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim turns each message into a report and reconciles it.
// Malformed messages are logged and marked so they never redeliver. A
// reconcile failure ends the session without marking the offset, so the
// event redelivers once the store is back.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := h.handleMessage(session.Context(), message); err != nil {
				return err
			}
			session.MarkMessage(message, "")
		}
	}
}

// handleMessage returns nil for messages that must be marked as consumed,
// including malformed ones. Only a failed reconcile of a valid event is
// an error.
func (h *groupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event ScoreEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		log.Warn().
			Err(err).
			Int64("offset", message.Offset).
			Int32("partition", message.Partition).
			Msg("Skipping undecodable score event")
		return nil
	}

	report, err := ingest.NewReport(event.ContextID, event.PlayerID, event.DisplayName, event.Score, model.SourceStream)
	if err != nil {
		log.Warn().
			Err(err).
			Int64("offset", message.Offset).
			Str("context_id", event.ContextID).
			Int64("player_id", event.PlayerID).
			Msg("Skipping invalid score event")
		return nil
	}

	if _, err := h.consumer.submitter.Reconcile(ctx, report); err != nil {
		log.Error().
			Err(err).
			Str("report_id", report.ReportID).
			Msg("Failed to reconcile streamed score, leaving event uncommitted")
		return fmt.Errorf("reconcile streamed score: %w", err)
	}
	return nil
}
