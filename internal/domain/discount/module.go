package discount

import "go.uber.org/fx"

var Module = fx.Module("discount.calculator",
	fx.Provide(NewCalculator),
)
