package broker

import (
	"github.com/leadgate/leadgate/internal/broker/repository"
	"github.com/leadgate/leadgate/internal/broker/service"
	"go.uber.org/fx"
)

var Module = fx.Module("broker.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
