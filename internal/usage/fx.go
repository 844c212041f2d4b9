package usage

import (
	"github.com/smallbiznis/warebill/internal/usage/repository"
	"github.com/smallbiznis/warebill/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
