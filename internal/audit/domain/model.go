package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser     ActorType = "user"
	ActorTypeOperator ActorType = "operator"
	ActorTypeSystem   ActorType = "system"
)

// AuditLog records security-sensitive actions: key decryption, approval
// decisions, payment method issuance.
type AuditLog struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	TenantID   *snowflake.ID  `json:"tenant_id" gorm:"index"`
	ActorType  string         `json:"actor_type" gorm:"type:varchar(20);not null"`
	ActorID    *string        `json:"actor_id" gorm:"type:varchar(255)"`
	Action     string         `json:"action" gorm:"type:varchar(100);not null;index"`
	TargetType string         `json:"target_type" gorm:"type:varchar(50)"`
	TargetID   *string        `json:"target_id" gorm:"type:varchar(255);index"`
	Metadata   datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type Service interface {
	AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action, targetType string, targetID *string, metadata map[string]any) error
}
