package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/promopulse/coupon-service/internal/domain"
)

// CouponGateway is the client-facing side of the async protocol: it submits
// create/use requests and answers status polls by task id.
type CouponGateway interface {
	SubmitCreate(ctx context.Context, code, countryCode string, maxUsage int) (domain.CreateResult, error)
	SubmitUse(ctx context.Context, code, userID, ipAddress string) (domain.UseResult, error)
	CreateTaskStatus(ctx context.Context, taskID uuid.UUID) (domain.CreateResult, error)
	UseTaskStatus(ctx context.Context, taskID uuid.UUID) (domain.UseResult, error)
}

// CountryResolver maps an IP address to a two-letter country code.
type CountryResolver interface {
	CountryCode(ctx context.Context, ip string) (string, error)
}
