package invoice

import (
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/invoice/render"
	"github.com/smallbiznis/warebill/internal/invoice/repository"
	"github.com/smallbiznis/warebill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(
		repository.Provide,
		render.NewPDFRenderer,
		service.NewService,
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.Reader { return s },
	),
)
