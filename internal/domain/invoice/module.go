package invoice

import (
	"go.uber.org/fx"

	"servicecenter/internal/domain/subscription"
)

var Module = fx.Module("invoice.service",
	fx.Provide(NewService),
	fx.Provide(func(s *Service) subscription.Invoicer { return s }),
)
