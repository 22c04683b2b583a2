package subscription

import "go.uber.org/fx"

var Module = fx.Module("subscription.service",
	fx.Provide(NewRepository),
	fx.Provide(NewLedger),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
)
