package subscription

import (
	"github.com/railzwaylabs/renewal/internal/subscription/repository"
	"github.com/railzwaylabs/renewal/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
