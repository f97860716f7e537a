package kafka

import (
	"github.com/google/uuid"
	"github.com/promopulse/coupon-service/internal/domain"
)

type CreateRequest struct {
	TaskID      uuid.UUID `json:"task_id"`
	Code        string    `json:"code"`
	CountryCode string    `json:"country_code"`
	MaxUsage    int       `json:"max_usage"`
}

type CreateResponse struct {
	TaskID uuid.UUID           `json:"task_id"`
	Status domain.CreateStatus `json:"status"`
}

type UseRequest struct {
	TaskID    uuid.UUID `json:"task_id"`
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
}

type UseResponse struct {
	TaskID uuid.UUID        `json:"task_id"`
	Status domain.UseStatus `json:"status"`
}
