package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskTimeout  = errors.New("task timed out")
)

// MaxUsageCeiling caps how many redemptions a single coupon may allow.
const MaxUsageCeiling = 1_000_000

// CreateStatus is the outcome of a coupon create request.
type CreateStatus string

const (
	CreatePending       CreateStatus = "PENDING"
	CreateCreated       CreateStatus = "CREATED"
	CreateAlreadyExists CreateStatus = "ALREADY_EXISTS"
	CreateFailed        CreateStatus = "FAILED"
)

// UseStatus is the outcome of a coupon use request.
type UseStatus string

const (
	UsePending             UseStatus = "PENDING"
	UseSuccess             UseStatus = "SUCCESS"
	UseLimitReached        UseStatus = "LIMIT_REACHED"
	UseAlreadyUsed         UseStatus = "ALREADY_USED"
	UseCountryNotSupported UseStatus = "COUNTRY_NOT_SUPPORTED"
	UseCountryError        UseStatus = "COUNTRY_ERROR"
	UseNotExists           UseStatus = "NOT_EXISTS"
	UseFailed              UseStatus = "FAILED"
)

// Terminal reports whether the status will never change again.
func (s CreateStatus) Terminal() bool {
	return s != "" && s != CreatePending
}

func (s UseStatus) Terminal() bool {
	return s != "" && s != UsePending
}

func (s CreateStatus) Message() string {
	switch s {
	case CreateCreated:
		return "Coupon created successfully"
	case CreateAlreadyExists:
		return "Coupon with this code already exists"
	case CreateFailed:
		return "Failed to create coupon"
	default:
		return "Coupon creation in progress"
	}
}

func (s UseStatus) Message() string {
	switch s {
	case UseSuccess:
		return "Coupon used successfully"
	case UseLimitReached:
		return "Coupon usage limit reached"
	case UseAlreadyUsed:
		return "Coupon already used by this user"
	case UseCountryNotSupported:
		return "Coupon not supported in this country"
	case UseCountryError:
		return "Error determining country from IP"
	case UseNotExists:
		return "Coupon does not exist"
	case UseFailed:
		return "Failed to use coupon"
	default:
		return "Coupon use in progress"
	}
}

type Coupon struct {
	ID          uuid.UUID
	Code        string
	CountryCode string
	MaxUses     int
	CurrentUses int
	CreatedAt   time.Time
}

type CouponUsage struct {
	ID              uuid.UUID
	CouponID        uuid.UUID
	UserID          string
	UserCountryCode string
	UsedAt          time.Time
}

// CorrelationRecord is the value stored per task id in the correlation store.
type CorrelationRecord struct {
	Status  string
	Message string
}

type CreateResult struct {
	TaskID  uuid.UUID
	Status  CreateStatus
	Message string
}

type UseResult struct {
	TaskID  uuid.UUID
	Status  UseStatus
	Message string
}

// NormalizeCode maps a coupon code to its canonical, case-insensitive form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var countryCodeRe = regexp.MustCompile(`^[A-Za-z]{2}$`)

// ValidateCreate returns field-level validation messages for a create request.
// An empty map means the request is valid.
func ValidateCreate(code, countryCode string, maxUsage int) map[string]string {
	errs := map[string]string{}
	validateCode(errs, code)
	if strings.TrimSpace(countryCode) == "" {
		errs["country_code"] = "Country code cannot be blank"
	} else if !countryCodeRe.MatchString(countryCode) {
		errs["country_code"] = "Country code must be 2 letters"
	}
	if maxUsage <= 0 {
		errs["max_usage"] = "Max usage must be positive"
	} else if maxUsage > MaxUsageCeiling {
		errs["max_usage"] = "Max usage cannot exceed 1000000"
	}
	return errs
}

// ValidateUse returns field-level validation messages for a use request.
func ValidateUse(code, userID string) map[string]string {
	errs := map[string]string{}
	validateCode(errs, code)
	if strings.TrimSpace(userID) == "" {
		errs["user_id"] = "User ID cannot be blank"
	} else if len(userID) > 64 {
		errs["user_id"] = "User ID cannot exceed 64 characters"
	}
	return errs
}

func validateCode(errs map[string]string, code string) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		errs["code"] = "Coupon code cannot be blank"
	} else if len(trimmed) > 64 {
		errs["code"] = "Coupon code must be between 1 and 64 characters"
	}
}
