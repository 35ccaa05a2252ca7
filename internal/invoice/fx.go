package invoice

import (
	"github.com/leadgate/leadgate/internal/invoice/render"
	"github.com/leadgate/leadgate/internal/invoice/repository"
	"github.com/leadgate/leadgate/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(render.NewRenderer),
	fx.Provide(service.New),
)
