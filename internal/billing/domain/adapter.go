package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// BillingAuthParams is the uniform input every provider adapter accepts
// for starting a billing-key authorization. SuccessURL and FailURL must
// be absolute URLs reachable by the vendor.
type BillingAuthParams struct {
	CustomerKey   string
	CustomerName  string
	CustomerEmail string
	SuccessURL    string
	FailURL       string
}

// BillingAuthRedirect points the browser at the vendor's hosted
// authorization page. Control returns to us only via the callback URLs.
type BillingAuthRedirect struct {
	URL string
}

// PaymentMethodDetails is what a vendor hands back when an authKey is
// exchanged for a billing key. Never persisted as-is; the billing key is
// encrypted before storage.
type PaymentMethodDetails struct {
	BillingKey   string
	CardBrand    string
	CardLast4    string
	CardExpMonth int
	CardExpYear  int
}

// GatewayAdapter encapsulates one PG vendor. Adding a provider means
// adding one factory; the registry and orchestrator need no changes.
type GatewayAdapter interface {
	// RequestBillingAuth prepares the redirect to the vendor's hosted
	// auth UI. It fails with ErrGatewayUnavailable before any
	// navigation if the redirect cannot be constructed.
	RequestBillingAuth(ctx context.Context, params BillingAuthParams) (*BillingAuthRedirect, error)

	// IssueBillingKey exchanges a single-use authKey for a reusable
	// billing key. ErrExchangeRejected means the vendor refused the
	// key (consumed, expired, invalid); ErrGatewayUnavailable means
	// transport failure.
	IssueBillingKey(ctx context.Context, authKey, customerKey string) (*PaymentMethodDetails, error)

	// Ping performs a live credential check. Advisory only; the
	// approval workflow surfaces the result without acting on it.
	Ping(ctx context.Context) error
}

// AdapterConfig carries the decrypted tenant credentials an adapter
// needs. Built per call from an ACTIVE (or, for connection tests, any)
// PG configuration; never cached.
type AdapterConfig struct {
	TenantID  snowflake.ID
	Provider  Provider
	ClientKey string
	SecretKey string
	TestMode  bool
}

type AdapterFactory interface {
	Provider() Provider
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}
