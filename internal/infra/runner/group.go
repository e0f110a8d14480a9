// Package runner supervises the long-running workers of the process.
package runner

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Group runs named workers under one context. The first worker to fail
// cancels the others; a worker returning nil does not.
type Group struct {
	g      *errgroup.Group
	ctx    context.Context
	logger zerolog.Logger
}

func New(ctx context.Context, logger zerolog.Logger) *Group {
	g, ctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: ctx, logger: logger}
}

// Context is cancelled when any worker fails or the parent is done.
func (g *Group) Context() context.Context { return g.ctx }

func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.g.Go(func() error {
		g.logger.Debug().Str("worker", name).Msg("worker started")
		err := fn(g.ctx)
		if err != nil && g.ctx.Err() == nil {
			g.logger.Error().Err(err).Str("worker", name).Msg("worker failed")
		} else {
			g.logger.Debug().Str("worker", name).Msg("worker stopped")
		}
		return err
	})
}

// Wait blocks until every worker has returned and reports the first error.
func (g *Group) Wait() error { return g.g.Wait() }
