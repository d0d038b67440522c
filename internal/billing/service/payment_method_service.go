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

type PaymentMethodServiceParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	AuditSvc auditdomain.Service
}

type PaymentMethodServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewPaymentMethodService(p PaymentMethodServiceParams) domain.PaymentMethodService {
	return &PaymentMethodServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("billing.paymentmethod"),
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *PaymentMethodServiceImpl) List(ctx context.Context, tenantID snowflake.ID) ([]*domain.PaymentMethod, error) {
	var methods []*domain.PaymentMethod
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("is_default DESC, created_at DESC").
		Find(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// SetDefault flips the tenant's default inside one transaction so there
// is never a moment with two defaults.
func (s *PaymentMethodServiceImpl) SetDefault(ctx context.Context, tenantID, paymentMethodID snowflake.ID) error {
	now := s.clock.Now(ctx)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pm domain.PaymentMethod
		if err := tx.Where("id = ? AND tenant_id = ?", paymentMethodID, tenantID).First(&pm).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPaymentMethodNotFound
			}
			return err
		}

		if err := tx.Model(&domain.PaymentMethod{}).
			Where("tenant_id = ? AND is_default = ?", tenantID, true).
			Updates(map[string]any{"is_default": false, "updated_at": now}).Error; err != nil {
			return err
		}

		return tx.Model(&domain.PaymentMethod{}).
			Where("id = ?", paymentMethodID).
			Updates(map[string]any{"is_default": true, "updated_at": now}).Error
	})
}

// Delete removes a payment method unless a live subscription still bills
// against it. PENDING_ACTIVATION counts as live: activating it later
// must not find its payment method gone.
func (s *PaymentMethodServiceImpl) Delete(ctx context.Context, tenantID, paymentMethodID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pm domain.PaymentMethod
		if err := tx.Where("id = ? AND tenant_id = ?", paymentMethodID, tenantID).First(&pm).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPaymentMethodNotFound
			}
			return err
		}

		var inUse int64
		if err := tx.Model(&domain.Subscription{}).
			Where("payment_method_id = ? AND status IN ?", paymentMethodID,
				[]domain.SubscriptionStatus{domain.SubscriptionStatusPendingActivation, domain.SubscriptionStatusActive}).
			Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return domain.ErrPaymentMethodInUse
		}

		return tx.Delete(&domain.PaymentMethod{}, "id = ?", paymentMethodID).Error
	})
	if err != nil {
		return err
	}

	s.auditSvc.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeUser), nil,
		"billing.payment_method_deleted", "payment_method", strPtr(paymentMethodID.String()), nil)
	return nil
}

func (s *PaymentMethodServiceImpl) GetDefault(ctx context.Context, tenantID snowflake.ID) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_default = ?", tenantID, true).
		First(&pm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentMethodNotFound
		}
		return nil, err
	}
	return &pm, nil
}
