package ai

import (
	"context"
	"errors"
	"fmt"

	"firewatch/internal/config"
	"firewatch/internal/logger"
)

// ErrEngineInit is returned when the configured model cannot be loaded.
var ErrEngineInit = errors.New("failed to initialize inference engine")

// NewEngine loads the model selected by cfg.ModelBackend.
func NewEngine(ctx context.Context, cfg *config.Config, logger *logger.Logger) (Engine, error) {
	switch cfg.ModelBackend {
	case "eim", "":
		runner, err := StartEIM(ctx, cfg.ModelPath, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEngineInit, err)
		}
		return runner, nil
	case "dnn":
		engine, err := NewDNNEngine(cfg.ModelPath, cfg.ModelConfigPath, cfg.ModelLabelsPath,
			cfg.ResizeWidth, cfg.ResizeHeight, cfg.ModelInputScale, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEngineInit, err)
		}
		return engine, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrEngineInit, cfg.ModelBackend)
}
