package credit

import (
	"github.com/leadgate/leadgate/internal/credit/repository"
	"github.com/leadgate/leadgate/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
