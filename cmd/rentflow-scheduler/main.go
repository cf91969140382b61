package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/gateway"
	"github.com/smallbiznis/rentflow/internal/lease"
	"github.com/smallbiznis/rentflow/internal/logger"
	"github.com/smallbiznis/rentflow/internal/notification"
	"github.com/smallbiznis/rentflow/internal/obligation"
	"github.com/smallbiznis/rentflow/internal/observability"
	"github.com/smallbiznis/rentflow/internal/party"
	"github.com/smallbiznis/rentflow/internal/providers"
	"github.com/smallbiznis/rentflow/internal/receipt"
	"github.com/smallbiznis/rentflow/internal/scheduler"
	"github.com/smallbiznis/rentflow/pkg/db"
	"go.uber.org/fx"
)

// Scheduler-only deployment. Runs the sweeps without the HTTP API so the
// two can scale independently.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		providers.Module,
		party.Module,
		lease.Module,
		obligation.Module,
		notification.Module,
		receipt.Module,
		gateway.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
