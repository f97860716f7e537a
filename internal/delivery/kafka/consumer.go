package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/promopulse/coupon-service/internal/config"
	"github.com/promopulse/coupon-service/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the slice of kgo.Client used for emitting records; narrowed
// so handlers can run against a fake in tests.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Consumer is the engine-side worker: it consumes request events, drives the
// redemption engine and emits exactly one response event per request.
// Partitions are processed in parallel up to the configured concurrency;
// records within a partition stay in publication order.
type Consumer struct {
	client  *kgo.Client
	prod    producer
	cfg     *config.Config
	service *usecase.CouponService
	logger  zerolog.Logger
	ready   chan struct{}
}

func NewConsumer(cfg *config.Config, client *kgo.Client, service *usecase.CouponService, logger zerolog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		prod:    client,
		cfg:     cfg,
		service: service,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	close(c.ready)
	sem := make(chan struct{}, c.cfg.Concurrency())

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fetchErr := range errs {
				c.logger.Error().Err(fetchErr.Err).Str("topic", fetchErr.Topic).Msg("consumer poll error")
			}
		}

		var wg sync.WaitGroup
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			records := p.Records
			if len(records) == 0 {
				return
			}
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				for _, record := range records {
					c.processRecord(ctx, record)
				}
			}()
		})
		wg.Wait()

		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.logger.Error().Err(err).Msg("failed to commit records")
		}
	}
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	switch record.Topic {
	case TopicCreateRequest:
		c.handleCreate(ctx, record)
	case TopicUseRequest:
		c.handleUse(ctx, record)
	}
}

func (c *Consumer) handleCreate(ctx context.Context, record *kgo.Record) {
	var req CreateRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendToDLQ(ctx, record, "invalid create request payload")
		return
	}

	status := c.service.CreateCoupon(ctx, req.Code, req.CountryCode, req.MaxUsage)

	resp := CreateResponse{TaskID: req.TaskID, Status: status}
	c.produce(ctx, TopicCreateResponse, []byte(req.TaskID.String()), resp)
}

func (c *Consumer) handleUse(ctx context.Context, record *kgo.Record) {
	var req UseRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendToDLQ(ctx, record, "invalid use request payload")
		return
	}

	status := c.service.UseCoupon(ctx, req.Code, req.UserID, req.IPAddress)

	// Use responses are deliberately unkeyed; only one terminal response is
	// expected per task id, so delivery order does not matter.
	resp := UseResponse{TaskID: req.TaskID, Status: status}
	c.produce(ctx, TopicUseResponse, nil, resp)
}

func (c *Consumer) produce(ctx context.Context, topic string, key []byte, payload any) {
	value, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal response")
		return
	}
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	if err := c.prod.ProduceSync(ctx, record).FirstErr(); err != nil {
		c.logger.Error().Err(err).Str("topic", topic).Msg("failed to send response")
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, record *kgo.Record, message string) {
	c.logger.Error().Str("topic", record.Topic).Msg(message)

	dlqRecord := &kgo.Record{
		Topic: record.Topic + TopicDLQSuffix,
		Key:   record.Key,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: ErrorHeaderKey, Value: []byte(message)},
		},
	}
	if err := c.prod.ProduceSync(ctx, dlqRecord).FirstErr(); err != nil {
		c.logger.Error().Err(err).Str("topic", dlqRecord.Topic).Msg("failed to send record to DLQ")
	}
}
