package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	"github.com/smallbiznis/memberbill/internal/migration"
	"github.com/smallbiznis/memberbill/internal/observability"
	"github.com/smallbiznis/memberbill/internal/scheduler"
	"github.com/smallbiznis/memberbill/internal/server"
	"github.com/smallbiznis/memberbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and every billing domain behind it
		server.Module,

		// Recurring bills; SCHEDULER_ENABLED=false turns the loop off
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
