package lead

import (
	"github.com/leadgate/leadgate/internal/lead/repository"
	"github.com/leadgate/leadgate/internal/lead/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lead.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
