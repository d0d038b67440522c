package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Callback status values are part of the wire contract registered with
// the PG vendor and must not be renamed.
const (
	CallbackStatusSuccess = "success"
	CallbackStatusFail    = "fail"
)

type BeginRegistrationRequest struct {
	Provider      Provider
	CustomerName  string
	CustomerEmail string
}

// CallbackQuery is the parsed query string of the vendor redirect:
// status, customerKey and tenantId are placed there by us at initiate
// time; authKey (success) or errorCode/errorMessage (fail) are appended
// by the vendor.
type CallbackQuery struct {
	Status       string
	CustomerKey  string
	TenantID     string
	AuthKey      string
	ErrorCode    string
	ErrorMessage string
}

type CallbackOutcome string

const (
	CallbackOutcomeSucceeded CallbackOutcome = "succeeded"
	CallbackOutcomeFailed    CallbackOutcome = "failed"
)

// CallbackResult is the terminal state rendered to the user after the
// resume phase. Replayed marks an exchange that found an already-issued
// payment method for the same authKey (page refresh).
type CallbackResult struct {
	Outcome       CallbackOutcome `json:"outcome"`
	PaymentMethod *PaymentMethod  `json:"payment_method,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Replayed      bool            `json:"replayed,omitempty"`
}

type ExchangeRequest struct {
	TenantID    snowflake.ID
	Provider    Provider
	AuthKey     string
	CustomerKey string
}

type RegistrationService interface {
	// Begin starts the initiate phase: fresh customerKey, callback
	// URLs, vendor redirect. The tenant must be resolved in ctx.
	Begin(ctx context.Context, req BeginRegistrationRequest) (*Registration, error)

	// HandleCallback runs the resume phase on return from the vendor.
	// It validates the query, and for status=success exchanges the
	// authKey for a stored payment method. Safe to invoke repeatedly
	// with the same query string.
	HandleCallback(ctx context.Context, q CallbackQuery) (*CallbackResult, error)

	// Exchange is the idempotent authKey-for-payment-method exchange,
	// also exposed directly for clients that already hold the token.
	Exchange(ctx context.Context, req ExchangeRequest) (*PaymentMethod, bool, error)
}

type PaymentMethodService interface {
	List(ctx context.Context, tenantID snowflake.ID) ([]*PaymentMethod, error)
	SetDefault(ctx context.Context, tenantID, paymentMethodID snowflake.ID) error
	Delete(ctx context.Context, tenantID, paymentMethodID snowflake.ID) error
	GetDefault(ctx context.Context, tenantID snowflake.ID) (*PaymentMethod, error)
}

type CreateSubscriptionRequest struct {
	TenantID        snowflake.ID
	PlanID          snowflake.ID
	PaymentMethodID snowflake.ID
}

type SubscriptionService interface {
	List(ctx context.Context, tenantID snowflake.ID) ([]*Subscription, error)
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	Activate(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*Subscription, error)
	Cancel(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*Subscription, error)
}

type PlanService interface {
	ListActive(ctx context.Context) ([]*Plan, error)
	Get(ctx context.Context, planID snowflake.ID) (*Plan, error)
}
