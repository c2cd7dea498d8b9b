// Package app assembles the shared fx module behind every CLI command:
// configuration, the process registry with its shutdown sweep, and the
// I/O log.
package app

import (
	"context"

	"github.com/tetherproc/tether/config"
	"github.com/tetherproc/tether/internal/iolog"
	"github.com/tetherproc/tether/internal/proc"
	"github.com/tetherproc/tether/internal/shell"
	"github.com/tetherproc/tether/util/conf"
	"github.com/tetherproc/tether/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	sharedModule := fx.Module(
		"shared",
		// provide global config
		fx.Supply(cfg),
		// provide child process config
		fx.Supply(cfg.Proc),
		// provide the process registry
		fx.Provide(proc.NewRegistry),
		// provide the I/O log
		fx.Provide(iolog.New),
		// sweep orphaned children on shutdown
		fx.Invoke(registerRegistrySweep),
	)

	return shell.New(log, sharedModule), nil
}

// registerRegistrySweep force-terminates any still-registered child
// when the app stops, covering exit paths that bypass individual
// controller kills.
func registerRegistrySweep(lc fx.Lifecycle, registry *proc.Registry) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			registry.Shutdown()
			return nil
		},
	})
}
