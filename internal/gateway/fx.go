package gateway

import (
	"github.com/smallbiznis/rentflow/internal/gateway/adapters"
	"github.com/smallbiznis/rentflow/internal/gateway/adapters/momo"
	"github.com/smallbiznis/rentflow/internal/gateway/adapters/stripe"
	"github.com/smallbiznis/rentflow/internal/gateway/client"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	"github.com/smallbiznis/rentflow/internal/gateway/repository"
	"github.com/smallbiznis/rentflow/internal/gateway/service"
	"github.com/smallbiznis/rentflow/internal/gateway/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(repository.Provide),
	fx.Provide(newRegistry),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
	fx.Provide(client.New),
	fx.Provide(func(c *client.Client) gatewaydomain.Verifier { return c }),
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
		momo.NewFactory(),
	)
}
