package session

import (
	"context"

	"github.com/tetherproc/tether/util/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module(config Config) fx.Option {
	return fx.Module(
		"session",
		// scope the logger to this module
		logging.DecorateLogger("run"),
		// provide session config
		fx.Supply(config),
		// provide session
		fx.Provide(New),
		// run the session
		fx.Invoke(register),
	)
}

func register(
	lc fx.Lifecycle,
	s *Session,
	shutdowner fx.Shutdowner,
	ctx context.Context,
	log *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0

				if err := s.Run(ctx); err != nil {
					log.Error("session failed", zap.Error(err))
					code = 1
				}

				shutdowner.Shutdown(fx.ExitCode(code))
			}()

			return nil
		},
		OnStop: func(context.Context) error {
			s.Close()
			return nil
		},
	})
}
