package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

const (
	EventPgConfigApproved = "pg_configuration.approved"
	EventPgConfigRejected = "pg_configuration.rejected"
)

type Notification struct {
	TenantID snowflake.ID   `json:"tenant_id"`
	Event    string         `json:"event"`
	Payload  map[string]any `json:"payload"`
}

type Provider interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Service fans a notification out to all configured providers.
// Delivery is best-effort: a failed channel is logged, never surfaced
// to the operation that triggered the notification.
type Service interface {
	Notify(ctx context.Context, n Notification)
}
