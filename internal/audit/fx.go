package audit

import (
	"github.com/leadgate/leadgate/internal/audit/repository"
	"github.com/leadgate/leadgate/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
