package receipt

import (
	"github.com/smallbiznis/rentflow/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(service.New),
)
