package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/promopulse/coupon-service/internal/domain"
	"github.com/promopulse/coupon-service/internal/repository"
	"github.com/rs/zerolog"
)

type mockStore struct {
	couponExistsFn       func(ctx context.Context, code string) (bool, error)
	insertCouponFn       func(ctx context.Context, coupon domain.Coupon) error
	getCouponForUpdateFn func(ctx context.Context, code string) (domain.Coupon, error)
	usageExistsFn        func(ctx context.Context, couponID uuid.UUID, userID string) (bool, error)
	insertUsageFn        func(ctx context.Context, usage domain.CouponUsage) error
	incrementUsesFn      func(ctx context.Context, couponID uuid.UUID) error
	execTxFn             func(ctx context.Context, fn func(repository.Querier) error) error
}

func (m *mockStore) CouponExists(ctx context.Context, code string) (bool, error) {
	if m.couponExistsFn != nil {
		return m.couponExistsFn(ctx, code)
	}
	return false, nil
}

func (m *mockStore) InsertCoupon(ctx context.Context, coupon domain.Coupon) error {
	if m.insertCouponFn != nil {
		return m.insertCouponFn(ctx, coupon)
	}
	return nil
}

func (m *mockStore) GetCouponForUpdate(ctx context.Context, code string) (domain.Coupon, error) {
	if m.getCouponForUpdateFn != nil {
		return m.getCouponForUpdateFn(ctx, code)
	}
	return domain.Coupon{}, pgx.ErrNoRows
}

func (m *mockStore) UsageExists(ctx context.Context, couponID uuid.UUID, userID string) (bool, error) {
	if m.usageExistsFn != nil {
		return m.usageExistsFn(ctx, couponID, userID)
	}
	return false, nil
}

func (m *mockStore) InsertUsage(ctx context.Context, usage domain.CouponUsage) error {
	if m.insertUsageFn != nil {
		return m.insertUsageFn(ctx, usage)
	}
	return nil
}

func (m *mockStore) IncrementUses(ctx context.Context, couponID uuid.UUID) error {
	if m.incrementUsesFn != nil {
		return m.incrementUsesFn(ctx, couponID)
	}
	return nil
}

func (m *mockStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	if m.execTxFn != nil {
		return m.execTxFn(ctx, fn)
	}
	return fn(m)
}

type stubResolver struct {
	countryCodeFn func(ctx context.Context, ip string) (string, error)
}

func (s *stubResolver) CountryCode(ctx context.Context, ip string) (string, error) {
	if s.countryCodeFn != nil {
		return s.countryCodeFn(ctx, ip)
	}
	return "US", nil
}

func newTestService(store repository.Store, geo CountryResolver) *CouponService {
	return NewCouponService(store, geo, zerolog.Nop())
}

func TestCreateCoupon_Created(t *testing.T) {
	var inserted domain.Coupon
	store := &mockStore{
		insertCouponFn: func(ctx context.Context, coupon domain.Coupon) error {
			inserted = coupon
			return nil
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.CreateCoupon(context.Background(), "save10", "us", 100)
	if status != domain.CreateCreated {
		t.Fatalf("expected CREATED, got %s", status)
	}
	if inserted.Code != "SAVE10" {
		t.Fatalf("expected normalized code SAVE10, got %s", inserted.Code)
	}
	if inserted.CountryCode != "US" {
		t.Fatalf("expected uppercased country code US, got %s", inserted.CountryCode)
	}
	if inserted.CurrentUses != 0 {
		t.Fatalf("expected zero current uses, got %d", inserted.CurrentUses)
	}
}

func TestCreateCoupon_AlreadyExists(t *testing.T) {
	store := &mockStore{
		couponExistsFn: func(ctx context.Context, code string) (bool, error) {
			return true, nil
		},
		insertCouponFn: func(ctx context.Context, coupon domain.Coupon) error {
			t.Fatal("insert must not be called when the coupon exists")
			return nil
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.CreateCoupon(context.Background(), "SAVE10", "US", 100)
	if status != domain.CreateAlreadyExists {
		t.Fatalf("expected ALREADY_EXISTS, got %s", status)
	}
}

func TestCreateCoupon_LostRaceOnUniqueConstraint(t *testing.T) {
	store := &mockStore{
		insertCouponFn: func(ctx context.Context, coupon domain.Coupon) error {
			return &pgconn.PgError{Code: "23505"}
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.CreateCoupon(context.Background(), "SAVE10", "US", 100)
	if status != domain.CreateFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
}

func TestCreateCoupon_StoreError(t *testing.T) {
	store := &mockStore{
		couponExistsFn: func(ctx context.Context, code string) (bool, error) {
			return false, errors.New("connection refused")
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.CreateCoupon(context.Background(), "SAVE10", "US", 100)
	if status != domain.CreateFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
}

func TestUseCoupon_Success(t *testing.T) {
	couponID := uuid.New()
	var insertedUsage domain.CouponUsage
	incremented := false

	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			if code != "SAVE10" {
				t.Fatalf("expected normalized lookup code SAVE10, got %s", code)
			}
			return domain.Coupon{ID: couponID, Code: code, CountryCode: "US", MaxUses: 10, CurrentUses: 3}, nil
		},
		insertUsageFn: func(ctx context.Context, usage domain.CouponUsage) error {
			insertedUsage = usage
			return nil
		},
		incrementUsesFn: func(ctx context.Context, id uuid.UUID) error {
			incremented = true
			return nil
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.UseCoupon(context.Background(), "save10 ", "user1", "1.2.3.4")
	if status != domain.UseSuccess {
		t.Fatalf("expected SUCCESS, got %s", status)
	}
	if insertedUsage.CouponID != couponID {
		t.Fatalf("usage recorded against wrong coupon: %s", insertedUsage.CouponID)
	}
	if insertedUsage.UserID != "user1" {
		t.Fatalf("usage recorded against wrong user: %s", insertedUsage.UserID)
	}
	if insertedUsage.UserCountryCode != "US" {
		t.Fatalf("expected usage country US, got %s", insertedUsage.UserCountryCode)
	}
	if !incremented {
		t.Fatal("expected current_uses increment")
	}
}

func TestUseCoupon_NotExists(t *testing.T) {
	store := &mockStore{}

	svc := newTestService(store, &stubResolver{})
	status := svc.UseCoupon(context.Background(), "MISSING", "user1", "1.2.3.4")
	if status != domain.UseNotExists {
		t.Fatalf("expected NOT_EXISTS, got %s", status)
	}
}

func TestUseCoupon_LimitReached(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 5, CurrentUses: 5}, nil
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseLimitReached {
		t.Fatalf("expected LIMIT_REACHED, got %s", status)
	}
}

func TestUseCoupon_AlreadyUsed(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 5, CurrentUses: 1}, nil
		},
		usageExistsFn: func(ctx context.Context, couponID uuid.UUID, userID string) (bool, error) {
			return true, nil
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseAlreadyUsed {
		t.Fatalf("expected ALREADY_USED, got %s", status)
	}
}

// A request hitting both an exhausted limit and a prior usage must report
// LIMIT_REACHED: the limit gate precedes the usage gate.
func TestUseCoupon_LimitGatePrecedesUsageGate(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 1, CurrentUses: 1}, nil
		},
		usageExistsFn: func(ctx context.Context, couponID uuid.UUID, userID string) (bool, error) {
			t.Fatal("usage gate must not be evaluated after the limit gate fails")
			return true, nil
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseLimitReached {
		t.Fatalf("expected LIMIT_REACHED, got %s", status)
	}
}

func TestUseCoupon_CountryError(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 5, CurrentUses: 0}, nil
		},
	}
	geo := &stubResolver{
		countryCodeFn: func(ctx context.Context, ip string) (string, error) {
			return "", errors.New("lookup failed")
		},
	}

	svc := newTestService(store, geo)
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseCountryError {
		t.Fatalf("expected COUNTRY_ERROR, got %s", status)
	}
}

func TestUseCoupon_CountryNotSupported(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 5, CurrentUses: 0}, nil
		},
		insertUsageFn: func(ctx context.Context, usage domain.CouponUsage) error {
			t.Fatal("usage must not be recorded for an unsupported country")
			return nil
		},
	}
	geo := &stubResolver{
		countryCodeFn: func(ctx context.Context, ip string) (string, error) {
			return "DE", nil
		},
	}

	svc := newTestService(store, geo)
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseCountryNotSupported {
		t.Fatalf("expected COUNTRY_NOT_SUPPORTED, got %s", status)
	}
}

func TestUseCoupon_CountryComparisonIsCaseInsensitive(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 5, CurrentUses: 0}, nil
		},
	}
	geo := &stubResolver{
		countryCodeFn: func(ctx context.Context, ip string) (string, error) {
			return "us", nil
		},
	}

	svc := newTestService(store, geo)
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseSuccess {
		t.Fatalf("expected SUCCESS, got %s", status)
	}
}

func TestUseCoupon_IncrementFailureRollsBackToFailed(t *testing.T) {
	store := &mockStore{
		getCouponForUpdateFn: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{ID: uuid.New(), Code: code, CountryCode: "US", MaxUses: 5, CurrentUses: 0}, nil
		},
		incrementUsesFn: func(ctx context.Context, couponID uuid.UUID) error {
			return pgx.ErrNoRows
		},
	}

	svc := newTestService(store, &stubResolver{})
	status := svc.UseCoupon(context.Background(), "SAVE10", "user1", "1.2.3.4")
	if status != domain.UseFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
}
