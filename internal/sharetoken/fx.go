package sharetoken

import (
	"github.com/smallbiznis/warebill/internal/sharetoken/repository"
	"github.com/smallbiznis/warebill/internal/sharetoken/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sharetoken",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
