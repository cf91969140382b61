package party

import (
	"github.com/smallbiznis/rentflow/internal/party/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("party.service",
	fx.Provide(repository.Provide),
)
