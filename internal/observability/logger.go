package observability

import (
	"context"

	"github.com/railzwaylabs/renewal/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Development mode switches to the console encoder.
func NewLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("service", cfg.AppName),
		zap.String("version", cfg.AppVersion),
	)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}
