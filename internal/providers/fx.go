package providers

import (
	"github.com/smallbiznis/rentflow/internal/providers/email"
	"github.com/smallbiznis/rentflow/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
