package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/coresolution/billinghub/internal/audit/domain"
	"github.com/coresolution/billinghub/internal/billing/adapters"
	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/clock"
	notificationdomain "github.com/coresolution/billinghub/internal/notification/domain"
	"github.com/coresolution/billinghub/internal/pgconfig/domain"
	"github.com/coresolution/billinghub/internal/security/vault"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minRejectionReasonLen = 10

const connectionTestTimeout = 10 * time.Second

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Vault    vault.Provider
	Registry *adapters.Registry
	AuditSvc auditdomain.Service
	Notifier notificationdomain.Service
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	vault    vault.Provider
	registry *adapters.Registry
	auditSvc auditdomain.Service
	notifier notificationdomain.Service
}

func NewService(p ServiceParams) domain.Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("pgconfig.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		vault:    p.Vault,
		registry: p.Registry,
		auditSvc: p.AuditSvc,
		notifier: p.Notifier,
	}
}

func (s *ServiceImpl) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Configuration, error) {
	if strings.TrimSpace(req.APIKey) == "" || strings.TrimSpace(req.SecretKey) == "" {
		return nil, domain.ErrMissingCredentials
	}
	if !s.registry.Supports(req.Provider) {
		return nil, billingdomain.ErrUnsupportedProvider
	}

	apiKeyEnc, err := vault.EncryptString(s.vault, strings.TrimSpace(req.APIKey))
	if err != nil {
		return nil, err
	}
	secretKeyEnc, err := vault.EncryptString(s.vault, strings.TrimSpace(req.SecretKey))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	cfg := &domain.Configuration{
		ID:                 s.genID.Generate(),
		TenantID:           req.TenantID,
		Provider:           req.Provider,
		PgName:             strings.TrimSpace(req.PgName),
		MerchantID:         strings.TrimSpace(req.MerchantID),
		StoreID:            strings.TrimSpace(req.StoreID),
		APIKeyEncrypted:    apiKeyEnc,
		SecretKeyEncrypted: secretKeyEnc,
		TestMode:           req.TestMode,
		Status:             domain.StatusPending,
		Notes:              req.Notes,
		RequestedBy:        req.RequestedBy,
		RequestedAt:        now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeUser), strPtr(req.RequestedBy),
		"pg_config.submitted", "pg_configuration", strPtr(cfg.ID.String()), map[string]any{
			"provider": string(cfg.Provider),
			"pg_name":  cfg.PgName,
		})

	return cfg, nil
}

func (s *ServiceImpl) ListPending(ctx context.Context, filter domain.ListPendingFilter) ([]*domain.Configuration, error) {
	query := s.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending)

	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}

	var configs []*domain.Configuration
	if err := query.Order("requested_at ASC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *ServiceImpl) Get(ctx context.Context, configID snowflake.ID) (*domain.Configuration, error) {
	var cfg domain.Configuration
	if err := s.db.WithContext(ctx).Where("id = ?", configID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// TestConnection runs a live credential probe against the vendor. The
// result never changes the configuration status; it is stored on the
// row for the audit trail and returned for the operator to interpret.
func (s *ServiceImpl) TestConnection(ctx context.Context, configID snowflake.ID) (*domain.TestResult, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	result := s.runConnectionTest(ctx, cfg)

	raw, _ := json.Marshal(result)
	if err := s.db.WithContext(ctx).Model(&domain.Configuration{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]any{
			"last_test_result": raw,
			"last_tested_at":   result.TestedAt,
			"updated_at":       result.TestedAt,
		}).Error; err != nil {
		s.log.Warn("failed to persist connection test result", zap.Error(err))
	}

	s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeOperator), nil,
		"pg_config.connection_tested", "pg_configuration", strPtr(cfg.ID.String()), map[string]any{
			"success": result.Success,
			"message": result.Message,
		})

	return result, nil
}

func (s *ServiceImpl) runConnectionTest(ctx context.Context, cfg *domain.Configuration) *domain.TestResult {
	testedAt := s.clock.Now(ctx)

	adapterCfg, err := s.decryptAdapterConfig(cfg)
	if err != nil {
		return &domain.TestResult{Success: false, Message: "failed to decrypt credentials", TestedAt: testedAt}
	}

	adapter, err := s.registry.NewAdapter(cfg.Provider, adapterCfg)
	if err != nil {
		return &domain.TestResult{Success: false, Message: err.Error(), TestedAt: testedAt}
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTestTimeout)
	defer cancel()

	if err := adapter.Ping(pingCtx); err != nil {
		return &domain.TestResult{Success: false, Message: err.Error(), TestedAt: testedAt}
	}

	return &domain.TestResult{Success: true, Message: "connection ok", TestedAt: testedAt}
}

// DecryptKeys returns plaintext credentials for manual verification.
// The audit write is mandatory: if it cannot be recorded, no plaintext
// leaves this method.
func (s *ServiceImpl) DecryptKeys(ctx context.Context, configID snowflake.ID, requestedBy string) (*domain.DecryptedKeys, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	if err := s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeOperator), strPtr(requestedBy),
		"pg_config.keys_decrypted", "pg_configuration", strPtr(cfg.ID.String()), map[string]any{
			"provider": string(cfg.Provider),
		}); err != nil {
		return nil, err
	}

	apiKey, err := vault.DecryptString(s.vault, cfg.APIKeyEncrypted)
	if err != nil {
		return nil, err
	}
	secretKey, err := vault.DecryptString(s.vault, cfg.SecretKeyEncrypted)
	if err != nil {
		return nil, err
	}

	return &domain.DecryptedKeys{APIKey: apiKey, SecretKey: secretKey}, nil
}

// Approve transitions PENDING → APPROVED. When a connection test is
// requested it runs first; a failing test is reported as a warning but
// does not block the approval — the operator override is deliberate.
func (s *ServiceImpl) Approve(ctx context.Context, configID snowflake.ID, req domain.ApproveRequest) (*domain.ApproveResult, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Status != domain.StatusPending {
		return nil, domain.ErrConfigNotPending
	}

	var testResult *domain.TestResult
	if req.TestConnection {
		testResult, err = s.TestConnection(ctx, configID)
		if err != nil {
			return nil, err
		}
		if !testResult.Success {
			s.log.Warn("approving pg configuration despite failing connection test",
				zap.String("config_id", cfg.ID.String()),
				zap.String("message", testResult.Message))
		}
	}

	now := s.clock.Now(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Configuration
		if err := tx.Where("id = ?", configID).First(&current).Error; err != nil {
			return err
		}
		if current.Status != domain.StatusPending {
			return domain.ErrConfigNotPending
		}

		updates := map[string]any{
			"status":      domain.StatusApproved,
			"approved_by": req.ApprovedBy,
			"approved_at": now,
			"updated_at":  now,
		}
		if req.ApprovalNote != "" {
			updates["approval_note"] = req.ApprovalNote
		}
		return tx.Model(&domain.Configuration{}).Where("id = ?", configID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"approved_by":     req.ApprovedBy,
		"test_connection": req.TestConnection,
	}
	if testResult != nil {
		meta["test_success"] = testResult.Success
		meta["test_message"] = testResult.Message
	}
	s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeOperator), strPtr(req.ApprovedBy),
		"pg_config.approved", "pg_configuration", strPtr(cfg.ID.String()), meta)

	s.notifier.Notify(ctx, notificationdomain.Notification{
		TenantID: cfg.TenantID,
		Event:    notificationdomain.EventPgConfigApproved,
		Payload: map[string]any{
			"config_id": cfg.ID.String(),
			"provider":  string(cfg.Provider),
			"pg_name":   cfg.PgName,
		},
	})

	approved, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	return &domain.ApproveResult{
		Configuration: approved,
		TestResult:    testResult,
		TestWarning:   testResult != nil && !testResult.Success,
	}, nil
}

// Reject transitions PENDING → REJECTED. The reason length is validated
// before any database or network work happens.
func (s *ServiceImpl) Reject(ctx context.Context, configID snowflake.ID, req domain.RejectRequest) (*domain.Configuration, error) {
	reason := strings.TrimSpace(req.RejectionReason)
	if len([]rune(reason)) < minRejectionReasonLen {
		return nil, domain.ErrRejectionReasonTooShort
	}

	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Configuration
		if err := tx.Where("id = ?", configID).First(&current).Error; err != nil {
			return err
		}
		if current.Status != domain.StatusPending {
			return domain.ErrConfigNotPending
		}

		return tx.Model(&domain.Configuration{}).Where("id = ?", configID).Updates(map[string]any{
			"status":           domain.StatusRejected,
			"rejected_by":      req.RejectedBy,
			"rejected_at":      now,
			"rejection_reason": reason,
			"updated_at":       now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeOperator), strPtr(req.RejectedBy),
		"pg_config.rejected", "pg_configuration", strPtr(cfg.ID.String()), map[string]any{
			"reason": reason,
		})

	s.notifier.Notify(ctx, notificationdomain.Notification{
		TenantID: cfg.TenantID,
		Event:    notificationdomain.EventPgConfigRejected,
		Payload: map[string]any{
			"config_id": cfg.ID.String(),
			"provider":  string(cfg.Provider),
			"pg_name":   cfg.PgName,
			"reason":    reason,
		},
	})

	return s.Get(ctx, configID)
}

// Activate makes an approved configuration the live one for its
// (tenant, provider) pair, deactivating any previously active row.
func (s *ServiceImpl) Activate(ctx context.Context, configID snowflake.ID, actor string) (*domain.Configuration, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Configuration
		if err := tx.Where("id = ?", configID).First(&current).Error; err != nil {
			return err
		}
		if current.Status != domain.StatusApproved && current.Status != domain.StatusInactive {
			return domain.ErrConfigNotApproved
		}

		if err := tx.Model(&domain.Configuration{}).
			Where("tenant_id = ? AND provider = ? AND status = ?", current.TenantID, current.Provider, domain.StatusActive).
			Updates(map[string]any{"status": domain.StatusInactive, "updated_at": now}).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Configuration{}).Where("id = ?", configID).Updates(map[string]any{
			"status":     domain.StatusActive,
			"updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeOperator), strPtr(actor),
		"pg_config.activated", "pg_configuration", strPtr(cfg.ID.String()), nil)

	return s.Get(ctx, configID)
}

func (s *ServiceImpl) Deactivate(ctx context.Context, configID snowflake.ID, actor string) (*domain.Configuration, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Configuration
		if err := tx.Where("id = ?", configID).First(&current).Error; err != nil {
			return err
		}
		if current.Status != domain.StatusActive {
			return domain.ErrConfigNotApproved
		}

		return tx.Model(&domain.Configuration{}).Where("id = ?", configID).Updates(map[string]any{
			"status":     domain.StatusInactive,
			"updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.AuditLog(ctx, &cfg.TenantID, string(auditdomain.ActorTypeOperator), strPtr(actor),
		"pg_config.deactivated", "pg_configuration", strPtr(cfg.ID.String()), nil)

	return s.Get(ctx, configID)
}

func (s *ServiceImpl) AdapterConfig(ctx context.Context, tenantID snowflake.ID, provider billingdomain.Provider) (billingdomain.AdapterConfig, error) {
	var cfg domain.Configuration
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND status = ?", tenantID, provider, domain.StatusActive).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billingdomain.AdapterConfig{}, domain.ErrNoActiveConfig
		}
		return billingdomain.AdapterConfig{}, err
	}

	return s.decryptAdapterConfig(&cfg)
}

func (s *ServiceImpl) decryptAdapterConfig(cfg *domain.Configuration) (billingdomain.AdapterConfig, error) {
	apiKey, err := vault.DecryptString(s.vault, cfg.APIKeyEncrypted)
	if err != nil {
		return billingdomain.AdapterConfig{}, err
	}
	secretKey, err := vault.DecryptString(s.vault, cfg.SecretKeyEncrypted)
	if err != nil {
		return billingdomain.AdapterConfig{}, err
	}

	return billingdomain.AdapterConfig{
		TenantID:  cfg.TenantID,
		Provider:  cfg.Provider,
		ClientKey: apiKey,
		SecretKey: secretKey,
		TestMode:  cfg.TestMode,
	}, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
