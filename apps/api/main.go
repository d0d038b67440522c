package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/coresolution/billinghub/internal/audit"
	"github.com/coresolution/billinghub/internal/authz"
	"github.com/coresolution/billinghub/internal/billing"
	"github.com/coresolution/billinghub/internal/clock"
	"github.com/coresolution/billinghub/internal/config"
	"github.com/coresolution/billinghub/internal/db"
	"github.com/coresolution/billinghub/internal/migration"
	"github.com/coresolution/billinghub/internal/notification"
	"github.com/coresolution/billinghub/internal/observability"
	"github.com/coresolution/billinghub/internal/pgconfig"
	"github.com/coresolution/billinghub/internal/redis"
	"github.com/coresolution/billinghub/internal/security/vault"
	"github.com/coresolution/billinghub/internal/server"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redis.Module,
		clock.Module,
		vault.Module,
		migration.Module,

		audit.Module,
		notification.Module,
		authz.Module,
		pgconfig.Module,
		billing.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
