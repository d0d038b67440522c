package authz

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOpsAdmin  = "ops_admin"
	RoleOpsViewer = "ops_viewer"
)

// OpsAPIKey authenticates platform operators on the /ops surface.
// Keys are presented as "ops_<id>.<secret>"; only a bcrypt hash of the
// secret is stored.
type OpsAPIKey struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name       string       `json:"name" gorm:"type:varchar(100);not null"`
	Role       string       `json:"role" gorm:"type:varchar(50);not null"`
	SecretHash string       `json:"-" gorm:"type:varchar(100);not null"`
	Active     bool         `json:"active" gorm:"default:true"`
	LastUsedAt *time.Time   `json:"last_used_at"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (OpsAPIKey) TableName() string { return "ops_api_keys" }
