package server

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/jaredpereira/mud/store"
	"github.com/jaredpereira/mud/utils"
)

// Registry opens spaces lazily and keeps them open. Each space gets its own
// pebble directory under the data root; spaces are fully independent and
// serve requests in parallel.
type Registry struct {
	root     string
	log      utils.Logger
	identity Identity

	spaces *xsync.MapOf[string, *spaceEntry]
}

// spaceEntry gates the open of one space. The map only ever holds entries,
// never a bare nil space, so concurrent lookups either wait on the open or
// see its result.
type spaceEntry struct {
	once sync.Once
	sp   *Space
	err  error
}

func NewRegistry(root string, identity Identity, log utils.Logger) *Registry {
	return &Registry{
		root:     root,
		log:      log,
		identity: identity,
		spaces:   xsync.NewMapOf[string, *spaceEntry](),
	}
}

// Space returns the open space, opening (and migrating) it on first
// access. A failed open is not cached; the next caller retries.
func (r *Registry) Space(ctx context.Context, id string) (*Space, error) {
	e, _ := r.spaces.LoadOrCompute(id, func() *spaceEntry {
		return &spaceEntry{}
	})
	e.once.Do(func() {
		e.sp, e.err = OpenSpace(ctx, filepath.Join(r.root, id), id, store.Options{Logger: r.log})
	})
	if e.err != nil {
		r.spaces.Compute(id, func(cur *spaceEntry, ok bool) (*spaceEntry, bool) {
			if ok && cur != e {
				return cur, false // a retry already replaced us
			}
			return nil, true
		})
		return nil, e.err
	}
	return e.sp, nil
}

func (r *Registry) Close() {
	r.spaces.Range(func(id string, e *spaceEntry) bool {
		if e.sp != nil {
			if err := e.sp.Close(); err != nil {
				r.log.Warn("closing space", "space", id, "err", err)
			}
		}
		r.spaces.Delete(id)
		return true
	})
}
