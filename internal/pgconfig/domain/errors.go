package domain

import "errors"

var (
	ErrConfigNotFound    = errors.New("pg configuration not found")
	ErrConfigNotPending  = errors.New("pg configuration is not pending review")
	ErrConfigNotApproved = errors.New("pg configuration is not approved")
	ErrNoActiveConfig    = errors.New("no active pg configuration for provider")

	ErrRejectionReasonTooShort = errors.New("rejection reason must be at least 10 characters")
	ErrMissingCredentials      = errors.New("api key and secret key are required")
)
