package domain

import "errors"

var (
	ErrTenantNotFound      = errors.New("tenant not resolved")
	ErrUnsupportedProvider = errors.New("unsupported payment gateway provider")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrMalformedCallback   = errors.New("malformed gateway callback")
	ErrExchangeRejected    = errors.New("gateway rejected the authorization key")

	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrPaymentMethodInUse    = errors.New("payment method is referenced by an active subscription")

	ErrPlanNotFound = errors.New("pricing plan not found")

	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrSubscriptionNotPending = errors.New("subscription is not pending activation")
	ErrSubscriptionTerminal   = errors.New("subscription is already cancelled")

	ErrRegistrationNotFound = errors.New("registration not found")
)
