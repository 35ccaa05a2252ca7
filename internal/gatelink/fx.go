package gatelink

import (
	"github.com/leadgate/leadgate/internal/gatelink/repository"
	"github.com/leadgate/leadgate/internal/gatelink/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gatelink.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
