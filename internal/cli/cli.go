package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/stackfold/stackfold/pkg/xlog"
)

////////////////////////////////////////////////////////////////////////////////

type Config struct {
	LogLevel string
}

func (c *Config) fillDefault() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

////////////////////////////////////////////////////////////////////////////////

// App bundles the per-invocation state shared by all commands.
type App struct {
	logger xlog.Logger
	ctx    context.Context
	cancel func()
}

func New(config *Config) (*App, error) {
	config.fillDefault()

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	logger, err := NewLogger(level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{logger, ctx, cancel}, nil
}

func (a *App) Logger() xlog.Logger {
	return a.logger
}

func (a *App) Context() context.Context {
	return a.ctx
}

func (a *App) Shutdown() {
	a.cancel()
	_ = a.logger.Zap().Sync()
}
