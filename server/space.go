// Package server hosts authoritative spaces: one fact store per
// collaboration space, the push/pull handlers over it, the poke sockets,
// and the migration runner.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/store"
	"github.com/jaredpereira/mud/utils"
)

// Space is one collaboration space: the authoritative store plus the push
// lock that serializes overlapping push batches. Requests for different
// spaces run fully in parallel.
type Space struct {
	ID    string
	store *store.Store
	log   utils.Logger

	// pushLock serializes push batches; it is owned by the space, not
	// shared module state.
	pushLock sync.Mutex

	hub *Hub
}

// OpenSpace opens the space's store and brings it up to date on
// migrations.
func OpenSpace(ctx context.Context, dir, id string, opts store.Options) (*Space, error) {
	if opts.Logger == nil {
		opts.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	s, err := store.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	ctx = utils.WithDefaultArgs(ctx, "space", id)
	if err := runMigrations(ctx, s, Migrations, log); err != nil {
		s.Close()
		return nil, err
	}
	return &Space{
		ID:    id,
		store: s,
		log:   log,
		hub:   newHub(log),
	}, nil
}

func (sp *Space) Store() *store.Store { return sp.store }
func (sp *Space) Hub() *Hub           { return sp.hub }

func (sp *Space) Close() error {
	sp.hub.Close()
	return sp.store.Close()
}

// spaceContext adapts the store to the mutation capability interface.
// Server-only side effects queue up and run after the mutation returns;
// they are side channels, never part of the mutation's store effects.
type spaceContext struct {
	*store.Store
	deferred []func(ctx context.Context) error
}

func (c *spaceContext) RunOnServer(fn func(ctx context.Context) error) {
	c.deferred = append(c.deferred, fn)
}

func (c *spaceContext) flush(ctx context.Context, log utils.Logger) {
	for _, fn := range c.deferred {
		if err := fn(ctx); err != nil {
			log.WarnCtx(ctx, "post-commit hook failed", "err", err)
		}
	}
	c.deferred = nil
}

// IsMember reports whether a studio identity holds a space/member fact.
func (sp *Space) IsMember(studio string) (bool, error) {
	f, err := sp.store.AVE("space/member", facts.String(studio))
	return f != nil, err
}
