package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/promopulse/coupon-service/internal/domain"
	"github.com/promopulse/coupon-service/internal/repository"
	"github.com/rs/zerolog"
)

// CouponService is the redemption engine. It holds no state of its own:
// every decision is derived from the durable store, so reprocessing a
// duplicate delivery re-derives the same outcome.
type CouponService struct {
	store  repository.Store
	geo    CountryResolver
	logger zerolog.Logger
}

func NewCouponService(store repository.Store, geo CountryResolver, logger zerolog.Logger) *CouponService {
	return &CouponService{store: store, geo: geo, logger: logger}
}

// CreateCoupon inserts a new coupon under its normalized code. The unique
// index on code is the backstop for concurrent creates: a violation after
// the pre-check passed surfaces as FAILED.
func (s *CouponService) CreateCoupon(ctx context.Context, code, countryCode string, maxUsage int) domain.CreateStatus {
	code = domain.NormalizeCode(code)

	exists, err := s.store.CouponExists(ctx, code)
	if err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("coupon existence check failed")
		return domain.CreateFailed
	}
	if exists {
		s.logger.Warn().Str("code", code).Msg("coupon already exists")
		return domain.CreateAlreadyExists
	}

	coupon := domain.Coupon{
		ID:          uuid.New(),
		Code:        code,
		CountryCode: strings.ToUpper(countryCode),
		MaxUses:     maxUsage,
		CurrentUses: 0,
	}
	if err := s.store.InsertCoupon(ctx, coupon); err != nil {
		if repository.IsUniqueViolation(err) {
			s.logger.Warn().Str("code", code).Msg("lost create race on unique constraint")
		} else {
			s.logger.Error().Err(err).Str("code", code).Msg("coupon insert failed")
		}
		return domain.CreateFailed
	}

	s.logger.Info().Str("code", code).Str("country_code", coupon.CountryCode).Msg("coupon created")
	return domain.CreateCreated
}

// UseCoupon evaluates the redemption gates in order, short-circuiting at the
// first failure. The coupon row stays locked from lookup to commit, so the
// whole sequence is serializable per coupon.
func (s *CouponService) UseCoupon(ctx context.Context, code, userID, ipAddress string) domain.UseStatus {
	code = domain.NormalizeCode(code)

	var status domain.UseStatus
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		coupon, err := q.GetCouponForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				status = domain.UseNotExists
				return nil
			}
			return err
		}

		if coupon.CurrentUses >= coupon.MaxUses {
			status = domain.UseLimitReached
			return nil
		}

		used, err := q.UsageExists(ctx, coupon.ID, userID)
		if err != nil {
			return err
		}
		if used {
			status = domain.UseAlreadyUsed
			return nil
		}

		country, err := s.geo.CountryCode(ctx, ipAddress)
		if err != nil {
			s.logger.Error().Err(err).Str("code", code).Str("ip", ipAddress).Msg("country lookup failed")
			status = domain.UseCountryError
			return nil
		}
		if !strings.EqualFold(country, coupon.CountryCode) {
			status = domain.UseCountryNotSupported
			return nil
		}

		usage := domain.CouponUsage{
			ID:              uuid.New(),
			CouponID:        coupon.ID,
			UserID:          userID,
			UserCountryCode: strings.ToUpper(country),
		}
		if err := q.InsertUsage(ctx, usage); err != nil {
			return err
		}
		if err := q.IncrementUses(ctx, coupon.ID); err != nil {
			return err
		}
		status = domain.UseSuccess
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("code", code).Str("user_id", userID).Msg("coupon use failed")
		return domain.UseFailed
	}

	if status != domain.UseSuccess {
		s.logger.Warn().Str("code", code).Str("user_id", userID).Str("status", string(status)).Msg("coupon use rejected")
	} else {
		s.logger.Info().Str("code", code).Str("user_id", userID).Msg("coupon used")
	}
	return status
}
