package server

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/store"
	"github.com/jaredpereira/mud/utils"
)

// Migration is a one-time store transformation. Tags order the list; every
// Run must be idempotent, because a crash between a migration and its
// marker re-runs it on next open.
type Migration struct {
	Tag string
	Run func(ctx context.Context, s *store.Store) error
}

const (
	metaLastMigration = "lastAppliedMigration"
	migrationMarker   = "migration-"
)

// Migrations is the ordered list applied to every space on first access.
var Migrations = []Migration{
	{Tag: "2023-03-22-null", Run: func(context.Context, *store.Store) error { return nil }},
	{Tag: "2024-06-01-reindex-unique", Run: reindexUnique},
}

// reindexUnique rewrites every live unique-valued fact, which rebuilds its
// ave entry under the current key scheme.
func reindexUnique(ctx context.Context, s *store.Store) error {
	fs, _, err := s.FactsSince(nil)
	if err != nil {
		return err
	}
	for _, f := range fs {
		if f.Retracted || !f.Schema.Unique {
			continue
		}
		if _, err := s.UpdateFact(ctx, f.ID, store.Update{}); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies every migration with a tag greater than the
// persisted cursor, in order. Each migration records its own completion
// marker before the cursor moves, so a partial run never repeats finished
// work and never skips unfinished work.
func runMigrations(ctx context.Context, s *store.Store, list []Migration, log utils.Logger) error {
	cursor, _, err := s.MetaString(metaLastMigration)
	if err != nil {
		return err
	}
	for _, m := range list {
		if m.Tag <= cursor {
			continue
		}
		done, _, err := s.MetaString(migrationMarker + m.Tag)
		if err != nil {
			return err
		}
		if done == "" {
			log.InfoCtx(ctx, "running migration", "tag", m.Tag)
			if err := m.Run(ctx, s); err != nil {
				return errors.Wrapf(err, "migration %s", m.Tag)
			}
			if err := s.SetMetaString(migrationMarker+m.Tag, "done"); err != nil {
				return err
			}
		}
		if err := s.SetMetaString(metaLastMigration, m.Tag); err != nil {
			return err
		}
	}
	return nil
}
