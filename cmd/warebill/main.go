package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/migration"
	"github.com/smallbiznis/warebill/internal/observability"
	"github.com/smallbiznis/warebill/internal/scheduler"
	"github.com/smallbiznis/warebill/internal/server"
	"github.com/smallbiznis/warebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// schema first, the casbin adapter and services expect the tables
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
