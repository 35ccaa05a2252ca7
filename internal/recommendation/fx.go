package recommendation

import (
	"github.com/leadgate/leadgate/internal/recommendation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recommendation.service",
	fx.Provide(service.New),
)
