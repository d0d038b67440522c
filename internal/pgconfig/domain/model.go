package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Configuration is a tenant's onboarding record for a PG provider's
// credentials. API and secret keys are stored encrypted; plaintext is
// only produced by the audited DecryptKeys operation.
type Configuration struct {
	ID                 snowflake.ID           `json:"config_id" gorm:"primaryKey;autoIncrement:false"`
	TenantID           snowflake.ID           `json:"tenant_id" gorm:"not null;index"`
	Provider           billingdomain.Provider `json:"pg_provider" gorm:"type:varchar(20);not null;index"`
	PgName             string                 `json:"pg_name" gorm:"type:varchar(100);not null"`
	MerchantID         string                 `json:"merchant_id" gorm:"type:varchar(100)"`
	StoreID            string                 `json:"store_id" gorm:"type:varchar(100)"`
	APIKeyEncrypted    string                 `json:"-" gorm:"type:text;not null"`
	SecretKeyEncrypted string                 `json:"-" gorm:"type:text;not null"`
	TestMode           bool                   `json:"test_mode" gorm:"default:false"`
	Status             Status                 `json:"status" gorm:"type:varchar(20);not null;index"`
	Notes              string                 `json:"notes" gorm:"type:text"`

	RequestedBy string    `json:"requested_by" gorm:"type:varchar(255)"`
	RequestedAt time.Time `json:"requested_at" gorm:"not null"`

	ApprovedBy   *string    `json:"approved_by,omitempty" gorm:"type:varchar(255)"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	ApprovalNote *string    `json:"approval_note,omitempty" gorm:"type:text"`

	RejectedBy      *string    `json:"rejected_by,omitempty" gorm:"type:varchar(255)"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty" gorm:"type:text"`

	LastTestResult datatypes.JSON `json:"last_test_result,omitempty" gorm:"type:jsonb"`
	LastTestedAt   *time.Time     `json:"last_tested_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Configuration) TableName() string { return "pg_configurations" }

// TestResult is advisory: it never changes configuration status on its
// own; the operator interprets it.
type TestResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	TestedAt time.Time `json:"tested_at"`
}

// DecryptedKeys is returned only by the explicit decrypt operation and
// must never be persisted.
type DecryptedKeys struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

type SubmitRequest struct {
	TenantID    snowflake.ID
	Provider    billingdomain.Provider
	PgName      string
	MerchantID  string
	StoreID     string
	APIKey      string
	SecretKey   string
	TestMode    bool
	Notes       string
	RequestedBy string
}

type ListPendingFilter struct {
	TenantID *snowflake.ID
	Provider billingdomain.Provider
}

type ApproveRequest struct {
	ApprovedBy     string
	TestConnection bool
	ApprovalNote   string
}

// ApproveResult carries the advisory connection test (if one was run)
// alongside the approved configuration so the decision context stays
// visible to the operator.
type ApproveResult struct {
	Configuration *Configuration `json:"configuration"`
	TestResult    *TestResult    `json:"test_result,omitempty"`
	TestWarning   bool           `json:"test_warning,omitempty"`
}

type RejectRequest struct {
	RejectedBy      string
	RejectionReason string
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Configuration, error)
	ListPending(ctx context.Context, filter ListPendingFilter) ([]*Configuration, error)
	Get(ctx context.Context, configID snowflake.ID) (*Configuration, error)

	TestConnection(ctx context.Context, configID snowflake.ID) (*TestResult, error)
	DecryptKeys(ctx context.Context, configID snowflake.ID, requestedBy string) (*DecryptedKeys, error)

	Approve(ctx context.Context, configID snowflake.ID, req ApproveRequest) (*ApproveResult, error)
	Reject(ctx context.Context, configID snowflake.ID, req RejectRequest) (*Configuration, error)

	Activate(ctx context.Context, configID snowflake.ID, actor string) (*Configuration, error)
	Deactivate(ctx context.Context, configID snowflake.ID, actor string) (*Configuration, error)

	// AdapterConfig resolves the tenant's ACTIVE configuration for the
	// provider and decrypts it into adapter credentials. This is the
	// gate between the approval workflow and live gateway use.
	AdapterConfig(ctx context.Context, tenantID snowflake.ID, provider billingdomain.Provider) (billingdomain.AdapterConfig, error)
}
