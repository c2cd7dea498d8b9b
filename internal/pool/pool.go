// Package pool maintains a bounded pool of started process
// controllers, for hosts that drive many children concurrently.
package pool

import (
	"context"

	"github.com/jackc/puddle/v2"
	"github.com/tetherproc/tether/internal/iolog"
	"github.com/tetherproc/tether/internal/proc"
	"go.uber.org/zap"
)

type Pool struct {
	pool *puddle.Pool[*proc.Controller]
	log  *zap.Logger
}

type Params struct {
	// Config is the child process configuration shared by all
	// pooled controllers.
	Config proc.Config

	// MaxSize is the maximum number of concurrently live children.
	MaxSize int

	// Registry is the process-wide registry passed to every
	// controller.
	Registry *proc.Registry

	// IOLog receives the I/O of every pooled child.
	IOLog iolog.Log

	// Log is the logger to use for the pool
	Log *zap.Logger
}

func New(params Params) (*Pool, error) {
	log := params.Log.Named("pool")

	constructor := func(ctx context.Context) (*proc.Controller, error) {
		ctl := proc.New(params.Config, proc.Params{
			Registry: params.Registry,
			IOLog:    params.IOLog,
			Log:      params.Log,
		})

		if err := ctl.Start(ctx); err != nil {
			return nil, err
		}

		return ctl, nil
	}

	destructor := func(ctl *proc.Controller) {
		ctl.Kill()
	}

	pool, err := puddle.NewPool(&puddle.Config[*proc.Controller]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     int32(params.MaxSize),
	})
	if err != nil {
		return nil, err
	}

	return &Pool{
		pool: pool,
		log:  log,
	}, nil
}

// Lease is an acquired controller. Release returns it to the pool for
// reuse; Destroy kills the child and frees the slot, for children that
// misbehaved or timed out.
type Lease struct {
	res *puddle.Resource[*proc.Controller]
}

func (l *Lease) Controller() *proc.Controller {
	return l.res.Value()
}

func (l *Lease) Release() {
	l.res.Release()
}

func (l *Lease) Destroy() {
	l.res.Destroy()
}

// Acquire returns a started controller, spawning a new child if the
// pool is below capacity, or blocking until one is released.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	// a pooled child may have exited while idle; replace it
	if !res.Value().Alive() {
		p.log.Debug("discarding dead pooled child", zap.Int("pid", res.Value().Pid()))
		res.Destroy()
		return p.Acquire(ctx)
	}

	return &Lease{res: res}, nil
}

// Shutdown kills every pooled child and waits for all leases to be
// returned.
func (p *Pool) Shutdown() {
	p.pool.Close()
}
