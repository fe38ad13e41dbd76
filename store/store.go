// Package store implements the fact store engine: CRUD over facts plus the
// five secondary indexes, backed by pebble. The same engine runs inside the
// authoritative per-space server process and, over an in-memory filesystem,
// inside each client replica.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/muderrors"
	"github.com/jaredpereira/mud/utils"
)

type Options struct {
	Logger utils.Logger
	// InMemory backs the store with an in-memory filesystem. Client
	// replicas use this; the server never does.
	InMemory bool
	// SyncWrites forces a WAL fsync per applied batch.
	SyncWrites bool

	UniqueCacheSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.UniqueCacheSize == 0 {
		o.UniqueCacheSize = 10000
	}
}

// Store owns the underlying index records exclusively. Mutation functions
// reach facts only through its methods, never the raw keyspace; that single
// choke point is where every cardinality and uniqueness invariant lives.
type Store struct {
	db   *pebble.DB
	log  utils.Logger
	wo   *pebble.WriteOptions
	opts Options

	// serializes the read-check-write cycle of every write operation
	lock sync.Mutex

	uniqueCache *lru.Cache[string, string]

	clock     func() string
	lastStamp string
}

// nextStamp issues a strictly increasing update stamp. Two writes inside the
// same millisecond must not land on the same time-index slot: a pull
// watermark taken between them would skip the rewrite. Callers hold s.lock.
func (s *Store) nextStamp() string {
	t := s.clock()
	if t <= s.lastStamp {
		if n, err := strconv.ParseInt(s.lastStamp, 10, 64); err == nil {
			t = fmt.Sprintf("%016d", n+1)
		}
	}
	s.lastStamp = t
	return t
}

func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	po := &pebble.Options{}
	if opts.InMemory {
		po.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, errors.Wrapf(err, "open store at %q", dir)
	}
	cache, _ := lru.New[string, string](opts.UniqueCacheSize)
	wo := pebble.NoSync
	if opts.SyncWrites {
		wo = pebble.Sync
	}
	return &Store{
		db:          db,
		log:         opts.Logger,
		wo:          wo,
		opts:        opts,
		uniqueCache: cache,
		clock:       facts.Now,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Result, Assertion and Update live in the facts package so the mutation
// layer can speak them without importing storage.
type (
	Result    = facts.Result
	Assertion = facts.Assertion
	Update    = facts.Update
)

func (s *Store) AssertFact(ctx context.Context, a Assertion) (Result, error) {
	schema, ok := facts.Resolve(a.Attribute)
	if !ok {
		s.log.DebugCtx(ctx, "assert on unknown attribute", "attribute", a.Attribute)
		writeOutcomes.WithLabelValues("assert", "unknown_attribute").Inc()
		return Result{}, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	factID := a.FactID
	if factID == "" {
		factID = facts.NewID()
	}
	positions := a.Positions
	if schema.Cardinality == facts.One {
		existing, err := s.eavOneLocked(a.Entity, a.Attribute)
		if err != nil {
			return Result{}, err
		}
		if existing != nil {
			factID = existing.ID
			if positions == nil {
				positions = existing.Positions
			}
		}
	}

	f := facts.Fact{
		ID:          factID,
		Entity:      a.Entity,
		Attribute:   a.Attribute,
		Value:       a.Value.Normalize(schema),
		LastUpdated: s.nextStamp(),
		Schema:      schema,
		Positions:   positions,
	}
	ok, err := s.writeFact(f, true)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		writeOutcomes.WithLabelValues("assert", "unique_collision").Inc()
		return Result{}, nil
	}
	writeOutcomes.WithLabelValues("assert", "ok").Inc()
	return Result{Success: true, FactID: factID}, nil
}

// RetractFact soft-deletes: the fact is rewritten in place with the
// retracted mark and a fresh timestamp, through the same index-maintenance
// path as an assert. A missing id is a benign no-op.
func (s *Store) RetractFact(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := s.getFactLocked(id)
	if err != nil {
		return err
	}
	if f == nil {
		writeOutcomes.WithLabelValues("retract", "not_found").Inc()
		return nil
	}
	f.Retracted = true
	f.LastUpdated = s.nextStamp()
	if _, err := s.writeFact(*f, true); err != nil {
		return err
	}
	writeOutcomes.WithLabelValues("retract", "ok").Inc()
	return nil
}

// UpdateFact merges partial data onto an existing fact. Switching to an
// attribute whose cardinality or uniqueness class differs from the current
// one is rejected; uniqueness is re-validated on every update either way.
func (s *Store) UpdateFact(ctx context.Context, id string, u Update) (Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := s.getFactLocked(id)
	if err != nil {
		return Result{}, err
	}
	if f == nil {
		writeOutcomes.WithLabelValues("update", "not_found").Inc()
		return Result{}, nil
	}

	schema := f.Schema
	if u.Attribute != nil && *u.Attribute != f.Attribute {
		next, ok := facts.Resolve(*u.Attribute)
		if !ok {
			writeOutcomes.WithLabelValues("update", "unknown_attribute").Inc()
			return Result{}, nil
		}
		if next.Cardinality != schema.Cardinality || next.Unique != schema.Unique {
			s.log.WarnCtx(ctx, "update rejected", "fact", id,
				"err", muderrors.ErrSchemaClassChange,
				"from", f.Attribute, "to", *u.Attribute)
			writeOutcomes.WithLabelValues("update", "class_change").Inc()
			return Result{}, nil
		}
		f.Attribute = *u.Attribute
		schema = next
	}
	if u.Value != nil {
		f.Value = u.Value.Normalize(schema)
	}
	if u.Positions != nil {
		if f.Positions == nil {
			f.Positions = map[string]string{}
		}
		for k, v := range u.Positions {
			f.Positions[k] = v
		}
	}
	f.Schema = schema
	f.LastUpdated = s.nextStamp()

	ok, err := s.writeFact(*f, true)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		writeOutcomes.WithLabelValues("update", "unique_collision").Inc()
		return Result{}, nil
	}
	writeOutcomes.WithLabelValues("update", "ok").Inc()
	return Result{Success: true, FactID: id}, nil
}

// GetFact returns the record by id, retracted or not. Nil when absent.
func (s *Store) GetFact(id string) (*facts.Fact, error) {
	return s.getFactLocked(id)
}

func (s *Store) getFactLocked(id string) (*facts.Fact, error) {
	raw, closer, err := s.db.Get(factKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get fact %s", id)
	}
	defer closer.Close()
	var f facts.Fact
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "decode fact %s", id)
	}
	f.Value = f.Value.Normalize(f.Schema)
	return &f, nil
}

func valueHash(v facts.Value) [8]byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], xxhash.Sum64(v.Canonical()))
	return h
}

// writeFact is the single write path shared by assert, retract and update.
// It prechecks uniqueness, strips every stale index entry left by the
// previous copy of the fact, then applies all new entries in one batch.
// Re-applying the same fact is a no-op, so retries are safe. checkUnique is
// false only when mirroring authoritative facts, which have already won
// their uniqueness race on the server.
func (s *Store) writeFact(f facts.Fact, checkUnique bool) (bool, error) {
	if checkUnique && f.Schema.Unique {
		owner, err := s.aveLocked(f.Attribute, f.Value)
		if err != nil {
			return false, err
		}
		if owner != nil && owner.ID != f.ID {
			return false, nil
		}
	}

	prev, err := s.getFactLocked(f.ID)
	if err != nil {
		return false, err
	}

	b := s.db.NewBatch()
	if prev != nil {
		// Stale entries are removed under the previous fact's frozen
		// schema; the registry may disagree with what was written.
		_ = b.Delete(factKey(prev.ID), nil)
		_ = b.Delete(eavKey(prev.Entity, prev.Attribute, prev.ID), nil)
		_ = b.Delete(aevKey(prev.Attribute, prev.Entity, prev.ID), nil)
		_ = b.Delete(timeKey(prev.LastUpdated, prev.ID), nil)
		if prev.Schema.Unique {
			k := aveKey(prev.Attribute, valueHash(prev.Value))
			_ = b.Delete(k, nil)
			s.uniqueCache.Remove(string(k))
		}
		if prev.Value.IsRef() {
			_ = b.Delete(vaeKey(prev.Value.Target(), prev.Attribute, prev.ID), nil)
		}
	}

	raw, err := json.Marshal(f)
	if err != nil {
		return false, errors.Wrapf(err, "encode fact %s", f.ID)
	}
	_ = b.Set(factKey(f.ID), raw, nil)
	_ = b.Set(eavKey(f.Entity, f.Attribute, f.ID), raw, nil)
	_ = b.Set(aevKey(f.Attribute, f.Entity, f.ID), raw, nil)
	_ = b.Set(timeKey(f.LastUpdated, f.ID), raw, nil)
	if f.Schema.Unique {
		k := aveKey(f.Attribute, valueHash(f.Value))
		_ = b.Set(k, raw, nil)
		s.uniqueCache.Add(string(k), f.ID)
	}
	if f.Value.IsRef() {
		_ = b.Set(vaeKey(f.Value.Target(), f.Attribute, f.ID), raw, nil)
	}

	if err := s.db.Apply(b, s.wo); err != nil {
		return false, errors.Wrapf(err, "apply fact %s", f.ID)
	}
	return true, nil
}

// --- metadata ---

func (s *Store) MetaInt64(name string) (int64, bool, error) {
	raw, closer, err := s.db.Get(metaKey(name))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "get meta %s", name)
	}
	defer closer.Close()
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, errors.Wrapf(err, "decode meta %s", name)
	}
	return v, true, nil
}

func (s *Store) SetMetaInt64(name string, v int64) error {
	raw, _ := json.Marshal(v)
	return s.db.Set(metaKey(name), raw, s.wo)
}

func (s *Store) MetaString(name string) (string, bool, error) {
	raw, closer, err := s.db.Get(metaKey(name))
	if err == pebble.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get meta %s", name)
	}
	defer closer.Close()
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, errors.Wrapf(err, "decode meta %s", name)
	}
	return v, true, nil
}

func (s *Store) SetMetaString(name, v string) error {
	raw, _ := json.Marshal(v)
	return s.db.Set(metaKey(name), raw, s.wo)
}
