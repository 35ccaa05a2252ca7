package refund

import (
	"github.com/leadgate/leadgate/internal/refund/repository"
	"github.com/leadgate/leadgate/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
