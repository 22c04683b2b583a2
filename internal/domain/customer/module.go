package customer

import (
	"go.uber.org/fx"

	"servicecenter/internal/domain/appointment"
	"servicecenter/internal/domain/subscription"
)

var Module = fx.Module("customer.repository",
	fx.Provide(NewRepository),
	fx.Provide(func(r *Repository) appointment.CustomerDirectory { return r }),
	fx.Provide(func(r *Repository) subscription.VehicleDirectory { return r }),
)
