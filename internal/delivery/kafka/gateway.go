package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promopulse/coupon-service/internal/config"
	"github.com/promopulse/coupon-service/internal/domain"
	"github.com/promopulse/coupon-service/internal/repository"
	"github.com/promopulse/coupon-service/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Gateway turns the fire-and-forget message exchange into a bounded-latency
// synchronous-style call: it records the task as PENDING, publishes the
// request and polls the correlation store until a terminal status lands or
// the deadline passes. The record and the publish both happen before the
// wait begins, so a timeout never loses the request.
type Gateway struct {
	prod   producer
	store  repository.CorrelationStore
	cfg    *config.Config
	logger zerolog.Logger
}

func NewGateway(cfg *config.Config, prod producer, store repository.CorrelationStore, logger zerolog.Logger) *Gateway {
	return &Gateway{
		prod:   prod,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

func (g *Gateway) SubmitCreate(ctx context.Context, code, countryCode string, maxUsage int) (domain.CreateResult, error) {
	taskID := uuid.New()
	g.logger.Info().Str("task_id", taskID.String()).Str("code", code).Msg("submitting create request")

	pending := domain.CorrelationRecord{
		Status:  string(domain.CreatePending),
		Message: domain.CreatePending.Message(),
	}
	if err := g.store.Put(ctx, createKey(taskID), pending, g.cfg.TTL()); err != nil {
		return domain.CreateResult{}, fmt.Errorf("record pending create: %w", err)
	}

	req := CreateRequest{
		TaskID:      taskID,
		Code:        code,
		CountryCode: countryCode,
		MaxUsage:    maxUsage,
	}
	if err := g.publish(ctx, TopicCreateRequest, []byte(domain.NormalizeCode(code)), req); err != nil {
		return domain.CreateResult{}, fmt.Errorf("publish create request: %w", err)
	}

	if record, ok := g.awaitTerminal(ctx, createKey(taskID), createTerminal); ok {
		return createResult(taskID, record), nil
	}

	g.logger.Info().Str("task_id", taskID.String()).Msg("create request timed out, still pending")
	return domain.CreateResult{
		TaskID:  taskID,
		Status:  domain.CreatePending,
		Message: "Coupon creation request submitted",
	}, nil
}

func (g *Gateway) SubmitUse(ctx context.Context, code, userID, ipAddress string) (domain.UseResult, error) {
	taskID := uuid.New()
	g.logger.Info().Str("task_id", taskID.String()).Str("code", code).Str("user_id", userID).Msg("submitting use request")

	pending := domain.CorrelationRecord{
		Status:  string(domain.UsePending),
		Message: domain.UsePending.Message(),
	}
	if err := g.store.Put(ctx, useKey(taskID), pending, g.cfg.TTL()); err != nil {
		return domain.UseResult{}, fmt.Errorf("record pending use: %w", err)
	}

	req := UseRequest{
		TaskID:    taskID,
		Code:      code,
		UserID:    userID,
		IPAddress: ipAddress,
	}
	if err := g.publish(ctx, TopicUseRequest, []byte(domain.NormalizeCode(code)), req); err != nil {
		return domain.UseResult{}, fmt.Errorf("publish use request: %w", err)
	}

	if record, ok := g.awaitTerminal(ctx, useKey(taskID), useTerminal); ok {
		return useResult(taskID, record), nil
	}

	g.logger.Info().Str("task_id", taskID.String()).Msg("use request timed out, still pending")
	return domain.UseResult{
		TaskID:  taskID,
		Status:  domain.UsePending,
		Message: "Coupon use request submitted",
	}, nil
}

func (g *Gateway) CreateTaskStatus(ctx context.Context, taskID uuid.UUID) (domain.CreateResult, error) {
	record, ok, err := g.store.Get(ctx, createKey(taskID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.CreateResult{}, domain.ErrTaskTimeout
		}
		return domain.CreateResult{}, err
	}
	if !ok {
		return domain.CreateResult{}, domain.ErrTaskNotFound
	}
	return createResult(taskID, record), nil
}

func (g *Gateway) UseTaskStatus(ctx context.Context, taskID uuid.UUID) (domain.UseResult, error) {
	record, ok, err := g.store.Get(ctx, useKey(taskID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.UseResult{}, domain.ErrTaskTimeout
		}
		return domain.UseResult{}, err
	}
	if !ok {
		return domain.UseResult{}, domain.ErrTaskNotFound
	}
	return useResult(taskID, record), nil
}

// HandleResponse records a terminal response event in the correlation store.
// A later duplicate delivery just overwrites the record with the same status.
func (g *Gateway) HandleResponse(ctx context.Context, record *kgo.Record) {
	switch record.Topic {
	case TopicCreateResponse:
		var resp CreateResponse
		if err := json.Unmarshal(record.Value, &resp); err != nil {
			g.logger.Error().Err(err).Msg("failed to decode create response")
			return
		}
		g.storeStatus(ctx, createKey(resp.TaskID), string(resp.Status), resp.Status.Message())
	case TopicUseResponse:
		var resp UseResponse
		if err := json.Unmarshal(record.Value, &resp); err != nil {
			g.logger.Error().Err(err).Msg("failed to decode use response")
			return
		}
		g.storeStatus(ctx, useKey(resp.TaskID), string(resp.Status), resp.Status.Message())
	}
}

func (g *Gateway) storeStatus(ctx context.Context, key, status, message string) {
	record := domain.CorrelationRecord{Status: status, Message: message}
	if err := g.store.Put(ctx, key, record, g.cfg.TTL()); err != nil {
		g.logger.Error().Err(err).Str("key", key).Msg("failed to store response status")
	}
}

// awaitTerminal polls the correlation store until the record turns terminal
// or poll_interval x max_attempts elapses.
func (g *Gateway) awaitTerminal(ctx context.Context, key string, terminal func(string) bool) (domain.CorrelationRecord, bool) {
	interval := g.cfg.PollInterval()
	for attempt := 0; attempt < g.cfg.MaxAttempts(); attempt++ {
		record, ok, err := g.store.Get(ctx, key)
		if err != nil {
			g.logger.Error().Err(err).Str("key", key).Msg("correlation store read failed")
		} else if ok && terminal(record.Status) {
			return record, true
		}

		select {
		case <-ctx.Done():
			return domain.CorrelationRecord{}, false
		case <-time.After(interval):
		}
	}
	return domain.CorrelationRecord{}, false
}

func (g *Gateway) publish(ctx context.Context, topic string, key []byte, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	return g.prod.ProduceSync(ctx, record).FirstErr()
}

func createTerminal(status string) bool {
	return domain.CreateStatus(status).Terminal()
}

func useTerminal(status string) bool {
	return domain.UseStatus(status).Terminal()
}

func createKey(taskID uuid.UUID) string {
	return KeyPrefixCreate + taskID.String()
}

func useKey(taskID uuid.UUID) string {
	return KeyPrefixUse + taskID.String()
}

func createResult(taskID uuid.UUID, record domain.CorrelationRecord) domain.CreateResult {
	status := domain.CreateStatus(record.Status)
	message := record.Message
	if message == "" {
		message = status.Message()
	}
	return domain.CreateResult{TaskID: taskID, Status: status, Message: message}
}

func useResult(taskID uuid.UUID, record domain.CorrelationRecord) domain.UseResult {
	status := domain.UseStatus(record.Status)
	message := record.Message
	if message == "" {
		message = status.Message()
	}
	return domain.UseResult{TaskID: taskID, Status: status, Message: message}
}

var _ usecase.CouponGateway = (*Gateway)(nil)
