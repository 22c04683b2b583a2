package appointment

import "go.uber.org/fx"

var Module = fx.Module("appointment.service",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewChainTracker),
	fx.Provide(NewHandler),
)
