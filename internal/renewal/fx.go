package renewal

import (
	"github.com/railzwaylabs/renewal/internal/renewal/lock"
	"github.com/railzwaylabs/renewal/internal/renewal/repository"
	"github.com/railzwaylabs/renewal/internal/renewal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("renewal.service",
	fx.Provide(repository.Provide),
	fx.Provide(lock.Provide),
	fx.Provide(service.NewService),
)
