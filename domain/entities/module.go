package entities

import (
	"go.uber.org/fx"
)

// Module provides the entities domain
var Module = fx.Module("entities",
	fx.Provide(NewRepository),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
