package catalog

import (
	"github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/catalog/repository"
	"github.com/smallbiznis/warebill/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(
		repository.Provide,
		service.NewService,
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.ResolverFactory { return s },
	),
)
