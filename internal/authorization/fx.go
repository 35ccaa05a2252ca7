package authorization

import (
	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
	fx.Invoke(ensureEnforcer),
)

// ensureEnforcer seeds the role grants at startup rather than on first use.
func ensureEnforcer(_ *casbin.SyncedEnforcer) {}
