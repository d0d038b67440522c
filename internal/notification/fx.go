package notification

import (
	"github.com/coresolution/billinghub/internal/config"
	"github.com/coresolution/billinghub/internal/notification/domain"
	"github.com/coresolution/billinghub/internal/notification/provider/webhook"
	"github.com/coresolution/billinghub/internal/notification/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(func(cfg config.Config, log *zap.Logger) domain.Service {
		var providers []domain.Provider
		if cfg.Notification.WebhookURL != "" {
			providers = append(providers, webhook.New(cfg.Notification.WebhookURL))
		}
		return service.NewDispatcher(log, providers)
	}),
)
