package obligation

import (
	"github.com/smallbiznis/rentflow/internal/obligation/repository"
	"github.com/smallbiznis/rentflow/internal/obligation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("obligation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
