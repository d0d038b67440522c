package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Provider identifies a payment gateway vendor. The values mirror the
// provider codes tenants submit with their PG configurations.
type Provider string

const (
	ProviderToss    Provider = "TOSS"
	ProviderStripe  Provider = "STRIPE"
	ProviderIamport Provider = "IAMPORT"
	ProviderKakao   Provider = "KAKAO"
	ProviderNaver   Provider = "NAVER"
	ProviderPaypal  Provider = "PAYPAL"
	ProviderSandbox Provider = "SANDBOX"
)

// PaymentMethod is a tokenized, reusable payment credential. Raw card
// data never transits this service; only the vendor-issued billing key
// does, and it is stored encrypted.
type PaymentMethod struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	TenantID            snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	Provider            Provider     `json:"pg_provider" gorm:"type:varchar(20);not null"`
	CustomerKey         string       `json:"customer_key" gorm:"type:varchar(64);not null;index"`
	BillingKeyEncrypted string       `json:"-" gorm:"type:text;not null"`
	AuthKeyHash         string       `json:"-" gorm:"type:varchar(64);uniqueIndex"`
	CardBrand           string       `json:"card_brand" gorm:"type:varchar(50)"`
	CardLast4           string       `json:"card_last4" gorm:"type:varchar(4)"`
	CardExpMonth        int          `json:"card_exp_month"`
	CardExpYear         int          `json:"card_exp_year"`
	IsDefault           bool         `json:"is_default" gorm:"default:false"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

type SubscriptionStatus string

const (
	SubscriptionStatusPendingActivation SubscriptionStatus = "PENDING_ACTIVATION"
	SubscriptionStatusActive            SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled         SubscriptionStatus = "CANCELLED"
)

// Subscription enrolls a tenant in a pricing plan, billed against one of
// the tenant's payment methods. Amount, currency and cycle are copied
// from the plan at creation so later plan edits do not mutate existing
// subscriptions.
type Subscription struct {
	ID              snowflake.ID       `json:"id" gorm:"primaryKey;autoIncrement:false"`
	TenantID        snowflake.ID       `json:"tenant_id" gorm:"not null;index"`
	PlanID          snowflake.ID       `json:"plan_id" gorm:"not null"`
	PaymentMethodID snowflake.ID       `json:"payment_method_id" gorm:"not null;index"`
	Status          SubscriptionStatus `json:"status" gorm:"type:varchar(30);not null"`
	BillingCycle    string             `json:"billing_cycle" gorm:"type:varchar(20);not null"`
	AmountCents     int64              `json:"amount_cents" gorm:"not null"`
	Currency        string             `json:"currency" gorm:"type:varchar(3);not null"`
	CreatedAt       time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time          `json:"updated_at" gorm:"not null"`
	ActivatedAt     *time.Time         `json:"activated_at"`
	CancelledAt     *time.Time         `json:"cancelled_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

type RegistrationStatus string

const (
	RegistrationStatusOpen      RegistrationStatus = "open"
	RegistrationStatusSucceeded RegistrationStatus = "succeeded"
	RegistrationStatusFailed    RegistrationStatus = "failed"
)

// Registration is the server-side record of one billing-auth handshake.
// Correlation across the vendor redirect is carried entirely by the
// callback URL (customerKey, tenantId); this row is bookkeeping and the
// anchor for the idempotent exchange, not session state.
type Registration struct {
	ID              snowflake.ID       `json:"id" gorm:"primaryKey;autoIncrement:false"`
	TenantID        snowflake.ID       `json:"tenant_id" gorm:"not null;index"`
	Provider        Provider           `json:"pg_provider" gorm:"type:varchar(20);not null"`
	CustomerKey     string             `json:"customer_key" gorm:"type:varchar(64);not null;uniqueIndex"`
	Reference       string             `json:"reference" gorm:"type:varchar(32);not null"`
	Status          RegistrationStatus `json:"status" gorm:"type:varchar(20);not null"`
	SuccessURL      string             `json:"success_url" gorm:"type:text;not null"`
	FailURL         string             `json:"fail_url" gorm:"type:text;not null"`
	FailureCode     string             `json:"failure_code,omitempty" gorm:"type:varchar(100)"`
	FailureMessage  string             `json:"failure_message,omitempty" gorm:"type:text"`
	PaymentMethodID *snowflake.ID      `json:"payment_method_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at" gorm:"not null"`
	CompletedAt     *time.Time         `json:"completed_at"`

	// RedirectURL is handed to the browser, never stored.
	RedirectURL string `json:"redirect_url,omitempty" gorm:"-"`
}

func (Registration) TableName() string { return "billing_registrations" }

// Plan is a sellable pricing plan. Read-mostly; maintained by seed data
// and operator tooling.
type Plan struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Code         string       `json:"code" gorm:"type:varchar(100);not null;uniqueIndex"`
	Name         string       `json:"name" gorm:"type:varchar(100);not null"`
	Description  string       `json:"description" gorm:"type:text"`
	BillingCycle string       `json:"billing_cycle" gorm:"type:varchar(20);not null"`
	AmountCents  int64        `json:"amount_cents" gorm:"not null"`
	Currency     string       `json:"currency" gorm:"type:varchar(3);not null"`
	Active       bool         `json:"active" gorm:"default:true"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "pricing_plans" }

const (
	BillingCycleMonthly = "MONTHLY"
	BillingCycleYearly  = "YEARLY"
)
