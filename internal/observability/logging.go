package observability

import (
	"github.com/coresolution/billinghub/internal/config"
	"go.uber.org/zap"
)

func NewLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Observability.Development {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	zcfg.InitialFields = map[string]any{
		"service": cfg.Observability.ServiceName,
		"env":     cfg.Observability.Environment,
	}
	return zcfg.Build()
}
