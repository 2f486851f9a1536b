package payment

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/config"
	"github.com/railzwaylabs/renewal/internal/payment/adapters/manual"
	"github.com/railzwaylabs/renewal/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(NewGateway),
)

func NewGateway(cfg config.Config, log *zap.Logger, genID *snowflake.Node) (domain.Gateway, error) {
	switch cfg.Payment.Provider {
	case "", manual.ProviderName:
		return manual.New(log, genID, cfg.Payment.ManualMaxAmount), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, cfg.Payment.Provider)
	}
}
