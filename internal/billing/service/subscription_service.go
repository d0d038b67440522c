package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/coresolution/billinghub/internal/audit/domain"
	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/clock"
)

type SubscriptionServiceParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Plans    domain.PlanService
	AuditSvc auditdomain.Service
}

type SubscriptionServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	plans    domain.PlanService
	auditSvc auditdomain.Service
}

func NewSubscriptionService(p SubscriptionServiceParams) domain.SubscriptionService {
	return &SubscriptionServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("billing.subscription"),
		genID:    p.GenID,
		clock:    p.Clock,
		plans:    p.Plans,
		auditSvc: p.AuditSvc,
	}
}

func (s *SubscriptionServiceImpl) List(ctx context.Context, tenantID snowflake.ID) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// Create enrolls the tenant in a plan, snapshotting the plan's pricing
// onto the subscription. It starts PENDING_ACTIVATION; activation is a
// separate, explicit step.
func (s *SubscriptionServiceImpl) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, domain.ErrPlanNotFound
	}

	var pm domain.PaymentMethod
	err = s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", req.PaymentMethodID, req.TenantID).
		First(&pm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentMethodNotFound
		}
		return nil, err
	}

	now := s.clock.Now(ctx)
	sub := &domain.Subscription{
		ID:              s.genID.Generate(),
		TenantID:        req.TenantID,
		PlanID:          plan.ID,
		PaymentMethodID: pm.ID,
		Status:          domain.SubscriptionStatusPendingActivation,
		BillingCycle:    plan.BillingCycle,
		AmountCents:     plan.AmountCents,
		Currency:        plan.Currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &req.TenantID, string(auditdomain.ActorTypeUser), nil,
		"billing.subscription_created", "subscription", strPtr(sub.ID.String()), map[string]any{
			"plan_code":     plan.Code,
			"billing_cycle": plan.BillingCycle,
			"amount_cents":  plan.AmountCents,
		})

	return sub, nil
}

func (s *SubscriptionServiceImpl) Activate(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*domain.Subscription, error) {
	now := s.clock.Now(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub domain.Subscription
		if err := tx.Where("id = ? AND tenant_id = ?", subscriptionID, tenantID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrSubscriptionNotFound
			}
			return err
		}
		if sub.Status != domain.SubscriptionStatusPendingActivation {
			return domain.ErrSubscriptionNotPending
		}

		return tx.Model(&domain.Subscription{}).Where("id = ?", subscriptionID).Updates(map[string]any{
			"status":       domain.SubscriptionStatusActive,
			"activated_at": now,
			"updated_at":   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeUser), nil,
		"billing.subscription_activated", "subscription", strPtr(subscriptionID.String()), nil)

	return s.get(ctx, tenantID, subscriptionID)
}

// Cancel is allowed from PENDING_ACTIVATION or ACTIVE. CANCELLED is
// terminal; cancelling twice is an error, not a no-op.
func (s *SubscriptionServiceImpl) Cancel(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*domain.Subscription, error) {
	now := s.clock.Now(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub domain.Subscription
		if err := tx.Where("id = ? AND tenant_id = ?", subscriptionID, tenantID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrSubscriptionNotFound
			}
			return err
		}
		if sub.Status == domain.SubscriptionStatusCancelled {
			return domain.ErrSubscriptionTerminal
		}

		return tx.Model(&domain.Subscription{}).Where("id = ?", subscriptionID).Updates(map[string]any{
			"status":       domain.SubscriptionStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeUser), nil,
		"billing.subscription_cancelled", "subscription", strPtr(subscriptionID.String()), nil)

	return s.get(ctx, tenantID, subscriptionID)
}

func (s *SubscriptionServiceImpl) get(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", subscriptionID, tenantID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}
