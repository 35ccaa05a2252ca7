package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/audit"
	"github.com/leadgate/leadgate/internal/authorization"
	"github.com/leadgate/leadgate/internal/broker"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/credit"
	"github.com/leadgate/leadgate/internal/gatelink"
	"github.com/leadgate/leadgate/internal/invoice"
	"github.com/leadgate/leadgate/internal/lead"
	"github.com/leadgate/leadgate/internal/migration"
	"github.com/leadgate/leadgate/internal/observability"
	"github.com/leadgate/leadgate/internal/ratelimit"
	"github.com/leadgate/leadgate/internal/recommendation"
	"github.com/leadgate/leadgate/internal/refund"
	"github.com/leadgate/leadgate/internal/scheduler"
	"github.com/leadgate/leadgate/internal/server"
	"github.com/leadgate/leadgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Domains
		audit.Module,
		authorization.Module,
		gatelink.Module,
		broker.Module,
		lead.Module,
		credit.Module,
		refund.Module,
		invoice.Module,
		recommendation.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
