package kafka

import (
	"context"

	"github.com/google/uuid"
	"github.com/promopulse/coupon-service/internal/config"
	"github.com/promopulse/coupon-service/internal/domain"
	"github.com/promopulse/coupon-service/internal/repository"
	"github.com/promopulse/coupon-service/internal/usecase"
)

// DirectGateway bypasses the message channel and drives the engine
// in-process. Terminal statuses still land in the correlation store so the
// status endpoints behave identically.
type DirectGateway struct {
	service *usecase.CouponService
	store   repository.CorrelationStore
	cfg     *config.Config
}

func NewDirectGateway(cfg *config.Config, service *usecase.CouponService, store repository.CorrelationStore) usecase.CouponGateway {
	return &DirectGateway{service: service, store: store, cfg: cfg}
}

func (g *DirectGateway) SubmitCreate(ctx context.Context, code, countryCode string, maxUsage int) (domain.CreateResult, error) {
	taskID := uuid.New()
	status := g.service.CreateCoupon(ctx, code, countryCode, maxUsage)

	record := domain.CorrelationRecord{Status: string(status), Message: status.Message()}
	if err := g.store.Put(ctx, createKey(taskID), record, g.cfg.TTL()); err != nil {
		return domain.CreateResult{}, err
	}
	return createResult(taskID, record), nil
}

func (g *DirectGateway) SubmitUse(ctx context.Context, code, userID, ipAddress string) (domain.UseResult, error) {
	taskID := uuid.New()
	status := g.service.UseCoupon(ctx, code, userID, ipAddress)

	record := domain.CorrelationRecord{Status: string(status), Message: status.Message()}
	if err := g.store.Put(ctx, useKey(taskID), record, g.cfg.TTL()); err != nil {
		return domain.UseResult{}, err
	}
	return useResult(taskID, record), nil
}

func (g *DirectGateway) CreateTaskStatus(ctx context.Context, taskID uuid.UUID) (domain.CreateResult, error) {
	record, ok, err := g.store.Get(ctx, createKey(taskID))
	if err != nil {
		return domain.CreateResult{}, err
	}
	if !ok {
		return domain.CreateResult{}, domain.ErrTaskNotFound
	}
	return createResult(taskID, record), nil
}

func (g *DirectGateway) UseTaskStatus(ctx context.Context, taskID uuid.UUID) (domain.UseResult, error) {
	record, ok, err := g.store.Get(ctx, useKey(taskID))
	if err != nil {
		return domain.UseResult{}, err
	}
	if !ok {
		return domain.UseResult{}, domain.ErrTaskNotFound
	}
	return useResult(taskID, record), nil
}
