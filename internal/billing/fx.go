package billing

import (
	"github.com/coresolution/billinghub/internal/billing/adapters"
	"github.com/coresolution/billinghub/internal/billing/adapters/sandbox"
	"github.com/coresolution/billinghub/internal/billing/adapters/toss"
	"github.com/coresolution/billinghub/internal/billing/service"
	"github.com/coresolution/billinghub/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			toss.NewFactory(
				toss.WithBaseURL(cfg.Billing.TossBaseURL),
				toss.WithAuthPageURL(cfg.Billing.TossAuthPageURL),
			),
			sandbox.NewFactory(),
		)
	}),
	fx.Provide(service.NewRegistrationService),
	fx.Provide(service.NewPaymentMethodService),
	fx.Provide(service.NewSubscriptionService),
	fx.Provide(service.NewPlanService),
)
