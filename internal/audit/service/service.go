package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/coresolution/billinghub/internal/audit/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AuditService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(db *gorm.DB, log *zap.Logger, genID *snowflake.Node) auditdomain.Service {
	return &AuditService{
		db:    db,
		log:   log.Named("audit.service"),
		genID: genID,
	}
}

// AuditLog writes one audit row. Failures are logged, not propagated;
// an audit outage must not abort the audited operation itself.
func (s *AuditService) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action, targetType string, targetID *string, metadata map[string]any) error {
	var raw []byte
	if metadata != nil {
		var err error
		raw, err = json.Marshal(metadata)
		if err != nil {
			s.log.Error("failed to marshal audit metadata", zap.Error(err), zap.String("action", action))
			raw = nil
		}
	}

	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   raw,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Error("failed to write audit log", zap.Error(err), zap.String("action", action))
		return err
	}

	return nil
}
