package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/coresolution/billinghub/internal/audit/domain"
	"github.com/coresolution/billinghub/internal/billing/adapters"
	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/clock"
	"github.com/coresolution/billinghub/internal/config"
	"github.com/coresolution/billinghub/internal/observability"
	pgconfigdomain "github.com/coresolution/billinghub/internal/pgconfig/domain"
	"github.com/coresolution/billinghub/internal/security/vault"
	"github.com/coresolution/billinghub/internal/tenantcontext"
)

const callbackPath = "/billing/callback"

const exchangeClaimPrefix = "billinghub:exchange:"

// exchangeClaimRejected marks a claim whose authKey the vendor turned
// down, so repeats surface the rejection instead of "in progress".
const exchangeClaimRejected = "rejected"

type RegistrationServiceParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock
	Vault    vault.Provider
	Registry *adapters.Registry
	PgConfig pgconfigdomain.Service
	Redis    *redis.Client
	Metrics  *observability.Metrics
	AuditSvc auditdomain.Service
}

// RegistrationServiceImpl orchestrates the two-phase billing-auth
// handshake: initiate (Begin) hands the browser a vendor redirect,
// resume (HandleCallback/Exchange) turns the returned authKey into a
// stored payment method.
type RegistrationServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.BillingConfig
	genID    *snowflake.Node
	clock    clock.Clock
	vault    vault.Provider
	registry *adapters.Registry
	pgConfig pgconfigdomain.Service
	redis    *redis.Client
	metrics  *observability.Metrics
	auditSvc auditdomain.Service
}

func NewRegistrationService(p RegistrationServiceParams) domain.RegistrationService {
	return &RegistrationServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("billing.registration"),
		cfg:      p.Config.Billing,
		genID:    p.GenID,
		clock:    p.Clock,
		vault:    p.Vault,
		registry: p.Registry,
		pgConfig: p.PgConfig,
		redis:    p.Redis,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
	}
}

func (s *RegistrationServiceImpl) Begin(ctx context.Context, req domain.BeginRegistrationRequest) (*domain.Registration, error) {
	actor, ok := tenantcontext.ActorFromContext(ctx)
	if !ok || actor.TenantID == 0 {
		return nil, domain.ErrTenantNotFound
	}

	provider := req.Provider
	if provider == "" {
		provider = domain.Provider(s.cfg.DefaultProvider)
	}

	adapterCfg, err := s.pgConfig.AdapterConfig(ctx, actor.TenantID, provider)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.NewAdapter(provider, adapterCfg)
	if err != nil {
		return nil, err
	}

	// A fresh customerKey per attempt keeps retries independent; the
	// key doubles as the correlation handle across the vendor redirect.
	customerKey := uuid.NewString()
	successURL := s.callbackURL(domain.CallbackStatusSuccess, customerKey, actor.TenantID)
	failURL := s.callbackURL(domain.CallbackStatusFail, customerKey, actor.TenantID)

	customerName := req.CustomerName
	if customerName == "" {
		customerName = actor.Name
	}
	customerEmail := req.CustomerEmail
	if customerEmail == "" {
		customerEmail = actor.Email
	}

	redirect, err := adapter.RequestBillingAuth(ctx, domain.BillingAuthParams{
		CustomerKey:   customerKey,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		SuccessURL:    successURL,
		FailURL:       failURL,
	})
	if err != nil {
		return nil, err
	}

	reg := &domain.Registration{
		ID:          s.genID.Generate(),
		TenantID:    actor.TenantID,
		Provider:    provider,
		CustomerKey: customerKey,
		Reference:   ulid.Make().String(),
		Status:      domain.RegistrationStatusOpen,
		SuccessURL:  successURL,
		FailURL:     failURL,
		CreatedAt:   s.clock.Now(ctx),
	}
	if err := s.db.WithContext(ctx).Create(reg).Error; err != nil {
		return nil, err
	}

	s.metrics.RegistrationsStarted.Inc()
	s.auditSvc.AuditLog(ctx, &actor.TenantID, string(auditdomain.ActorTypeUser), strPtr(actor.UserID),
		"billing.registration_started", "billing_registration", strPtr(reg.ID.String()), map[string]any{
			"provider":     string(provider),
			"customer_key": customerKey,
		})

	reg.RedirectURL = redirect.URL
	return reg, nil
}

func (s *RegistrationServiceImpl) callbackURL(status, customerKey string, tenantID snowflake.ID) string {
	q := url.Values{}
	q.Set("status", status)
	q.Set("customerKey", customerKey)
	q.Set("tenantId", tenantID.String())
	return s.cfg.CallbackBaseURL + callbackPath + "?" + q.Encode()
}

func (s *RegistrationServiceImpl) HandleCallback(ctx context.Context, q domain.CallbackQuery) (*domain.CallbackResult, error) {
	if q.Status != domain.CallbackStatusSuccess && q.Status != domain.CallbackStatusFail {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrMalformedCallback, q.Status)
	}
	if q.CustomerKey == "" || q.TenantID == "" {
		return nil, fmt.Errorf("%w: customerKey and tenantId are required", domain.ErrMalformedCallback)
	}
	tenantID, err := snowflake.ParseString(q.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenantId", domain.ErrMalformedCallback)
	}

	var reg domain.Registration
	err = s.db.WithContext(ctx).
		Where("customer_key = ? AND tenant_id = ?", q.CustomerKey, tenantID).
		First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}

	// A failed registration is terminal. Refreshing the callback page
	// re-renders the stored outcome; the exchange is never retried with
	// an authKey the vendor already rejected.
	if reg.Status == domain.RegistrationStatusFailed {
		return &domain.CallbackResult{
			Outcome:      domain.CallbackOutcomeFailed,
			ErrorCode:    reg.FailureCode,
			ErrorMessage: reg.FailureMessage,
		}, nil
	}

	if q.Status == domain.CallbackStatusFail {
		return s.failRegistration(ctx, &reg, q.ErrorCode, q.ErrorMessage)
	}

	if q.AuthKey == "" {
		return nil, fmt.Errorf("%w: authKey is required on success", domain.ErrMalformedCallback)
	}

	pm, replayed, err := s.Exchange(ctx, domain.ExchangeRequest{
		TenantID:    tenantID,
		Provider:    reg.Provider,
		AuthKey:     q.AuthKey,
		CustomerKey: q.CustomerKey,
	})
	if err != nil {
		if errors.Is(err, domain.ErrExchangeRejected) {
			// Terminal: the authKey is dead, so the attempt is over.
			return s.failRegistration(ctx, &reg, "AUTH_KEY_REJECTED", err.Error())
		}
		// Transport failures leave the registration open; the user can
		// reload the callback page and the exchange retries.
		return nil, err
	}

	if reg.Status != domain.RegistrationStatusSucceeded {
		now := s.clock.Now(ctx)
		if err := s.db.WithContext(ctx).Model(&domain.Registration{}).
			Where("id = ?", reg.ID).
			Updates(map[string]any{
				"status":            domain.RegistrationStatusSucceeded,
				"payment_method_id": pm.ID,
				"completed_at":      now,
			}).Error; err != nil {
			s.log.Warn("failed to mark registration succeeded", zap.Error(err),
				zap.String("registration_id", reg.ID.String()))
		}
	}

	if !replayed {
		s.metrics.RegistrationsSucceeded.Inc()
	}

	return &domain.CallbackResult{
		Outcome:       domain.CallbackOutcomeSucceeded,
		PaymentMethod: pm,
		Replayed:      replayed,
	}, nil
}

func (s *RegistrationServiceImpl) failRegistration(ctx context.Context, reg *domain.Registration, code, message string) (*domain.CallbackResult, error) {
	if code == "" {
		code = "UNKNOWN"
	}
	if message == "" {
		message = "billing authorization was not completed"
	}

	if reg.Status == domain.RegistrationStatusOpen {
		now := s.clock.Now(ctx)
		if err := s.db.WithContext(ctx).Model(&domain.Registration{}).
			Where("id = ? AND status = ?", reg.ID, domain.RegistrationStatusOpen).
			Updates(map[string]any{
				"status":          domain.RegistrationStatusFailed,
				"failure_code":    code,
				"failure_message": message,
				"completed_at":    now,
			}).Error; err != nil {
			return nil, err
		}
		s.metrics.RegistrationsFailed.Inc()
	}

	return &domain.CallbackResult{
		Outcome:      domain.CallbackOutcomeFailed,
		ErrorCode:    code,
		ErrorMessage: message,
	}, nil
}

// Exchange swaps an authKey for a stored payment method. Replays of an
// already-exchanged key return the original payment method: the
// auth_key_hash unique index is the source of truth, a redis claim only
// narrows the window in which two concurrent exchanges both reach the
// vendor.
func (s *RegistrationServiceImpl) Exchange(ctx context.Context, req domain.ExchangeRequest) (*domain.PaymentMethod, bool, error) {
	if req.AuthKey == "" || req.CustomerKey == "" {
		return nil, false, fmt.Errorf("%w: authKey and customerKey are required", domain.ErrMalformedCallback)
	}

	authKeyHash := hashAuthKey(req.AuthKey)

	if pm, err := s.findByAuthKeyHash(ctx, authKeyHash); err != nil {
		return nil, false, err
	} else if pm != nil {
		if pm.TenantID != req.TenantID {
			return nil, false, fmt.Errorf("%w: authorization key belongs to another tenant", domain.ErrExchangeRejected)
		}
		s.metrics.ExchangeRequests.WithLabelValues("replayed").Inc()
		return pm, true, nil
	}

	claimed, err := s.redis.SetNX(ctx, exchangeClaimPrefix+authKeyHash, req.TenantID.String(),
		time.Duration(s.cfg.ExchangeTTLSec)*time.Second).Result()
	if err != nil {
		s.log.Warn("exchange claim unavailable, proceeding on database uniqueness", zap.Error(err))
		claimed = true
	}
	if !claimed {
		// Another exchange holds the claim. If it already finished, this
		// is a replay; otherwise the caller retries once it completes.
		if pm, err := s.findByAuthKeyHash(ctx, authKeyHash); err != nil {
			return nil, false, err
		} else if pm != nil && pm.TenantID == req.TenantID {
			s.metrics.ExchangeRequests.WithLabelValues("replayed").Inc()
			return pm, true, nil
		}
		if val, getErr := s.redis.Get(ctx, exchangeClaimPrefix+authKeyHash).Result(); getErr == nil && val == exchangeClaimRejected {
			return nil, false, fmt.Errorf("%w: authorization key was already rejected", domain.ErrExchangeRejected)
		}
		return nil, false, fmt.Errorf("%w: exchange already in progress", domain.ErrGatewayUnavailable)
	}

	adapterCfg, err := s.pgConfig.AdapterConfig(ctx, req.TenantID, req.Provider)
	if err != nil {
		s.releaseClaim(ctx, authKeyHash)
		return nil, false, err
	}
	adapter, err := s.registry.NewAdapter(req.Provider, adapterCfg)
	if err != nil {
		s.releaseClaim(ctx, authKeyHash)
		return nil, false, err
	}

	details, err := adapter.IssueBillingKey(ctx, req.AuthKey, req.CustomerKey)
	if err != nil {
		if errors.Is(err, domain.ErrExchangeRejected) {
			// The key is consumed or invalid; flag the claim so repeats
			// within the TTL report the rejection, not a transport error.
			if setErr := s.redis.Set(ctx, exchangeClaimPrefix+authKeyHash, exchangeClaimRejected,
				time.Duration(s.cfg.ExchangeTTLSec)*time.Second).Err(); setErr != nil {
				s.log.Warn("failed to flag rejected exchange claim", zap.Error(setErr))
			}
			s.metrics.ExchangeRequests.WithLabelValues("vendor_rejected").Inc()
			return nil, false, err
		}
		s.releaseClaim(ctx, authKeyHash)
		s.metrics.ExchangeRequests.WithLabelValues("error").Inc()
		return nil, false, err
	}

	billingKeyEnc, err := vault.EncryptString(s.vault, details.BillingKey)
	if err != nil {
		s.releaseClaim(ctx, authKeyHash)
		return nil, false, err
	}

	now := s.clock.Now(ctx)
	pm := &domain.PaymentMethod{
		ID:                  s.genID.Generate(),
		TenantID:            req.TenantID,
		Provider:            req.Provider,
		CustomerKey:         req.CustomerKey,
		BillingKeyEncrypted: billingKeyEnc,
		AuthKeyHash:         authKeyHash,
		CardBrand:           details.CardBrand,
		CardLast4:           details.CardLast4,
		CardExpMonth:        details.CardExpMonth,
		CardExpYear:         details.CardExpYear,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.PaymentMethod{}).
			Where("tenant_id = ?", req.TenantID).
			Count(&count).Error; err != nil {
			return err
		}
		pm.IsDefault = count == 0
		return tx.Create(pm).Error
	})
	if err != nil {
		// A concurrent exchange may have won the unique index race.
		if existing, findErr := s.findByAuthKeyHash(ctx, authKeyHash); findErr == nil && existing != nil {
			s.metrics.ExchangeRequests.WithLabelValues("replayed").Inc()
			return existing, true, nil
		}
		s.releaseClaim(ctx, authKeyHash)
		return nil, false, err
	}

	s.metrics.ExchangeRequests.WithLabelValues("issued").Inc()
	s.auditSvc.AuditLog(ctx, &req.TenantID, string(auditdomain.ActorTypeSystem), nil,
		"billing.payment_method_issued", "payment_method", strPtr(pm.ID.String()), map[string]any{
			"provider":     string(req.Provider),
			"customer_key": req.CustomerKey,
			"card_brand":   pm.CardBrand,
			"card_last4":   pm.CardLast4,
		})

	return pm, false, nil
}

func (s *RegistrationServiceImpl) findByAuthKeyHash(ctx context.Context, hash string) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := s.db.WithContext(ctx).Where("auth_key_hash = ?", hash).First(&pm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pm, nil
}

func (s *RegistrationServiceImpl) releaseClaim(ctx context.Context, hash string) {
	if err := s.redis.Del(ctx, exchangeClaimPrefix+hash).Err(); err != nil {
		s.log.Warn("failed to release exchange claim", zap.Error(err))
	}
}

func hashAuthKey(authKey string) string {
	sum := sha256.Sum256([]byte(authKey))
	return hex.EncodeToString(sum[:])
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
