package slot

import "go.uber.org/fx"

var Module = fx.Module("slot.guard",
	fx.Provide(NewGuard),
)
