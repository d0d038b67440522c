package pgconfig

import (
	"github.com/coresolution/billinghub/internal/pgconfig/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pgconfig",
	fx.Provide(service.NewService),
)
