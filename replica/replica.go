// Package replica is the client side of the sync protocol: a local mirror
// of a space's facts, optimistic execution of the shared mutation registry,
// a pending-push queue, and pull-based reconciliation against the
// authoritative server.
package replica

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/mutations"
	"github.com/jaredpereira/mud/protocol"
	"github.com/jaredpereira/mud/store"
	"github.com/jaredpereira/mud/utils"
)

type Options struct {
	ClientID string
	Logger   utils.Logger
}

func (o *Options) SetDefaults() {
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
}

// Replica owns a single client's local state. All mutation execution is
// synchronous and single-threaded relative to the caller; the network only
// ever moves whole batches.
type Replica struct {
	store  *store.Store
	log    utils.Logger
	client *Client

	lock     sync.Mutex
	clientID string
	nextID   uint64
	pending  []protocol.Mutation
	cookie   string

	// speculative writes since the last pull, in execution order; unwound
	// before a patch is applied so it lands on the authoritative base
	rebase []rebaseEntry

	undo UndoStack
}

// rebaseEntry snapshots one fact as it was before an optimistic write
// touched it. prev == nil records a fact the write created.
type rebaseEntry struct {
	id   string
	prev *facts.Fact
}

// New opens an in-memory replica. client may be nil for a purely local
// replica (tests, previews); Push/Pull then fail.
func New(client *Client, opts Options) (*Replica, error) {
	opts.SetDefaults()
	s, err := store.Open("replica", store.Options{InMemory: true, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	if client != nil && client.ClientID == "" {
		client.ClientID = opts.ClientID
	}
	return &Replica{
		store:    s,
		log:      opts.Logger,
		client:   client,
		clientID: opts.ClientID,
	}, nil
}

func (r *Replica) Close() error { return r.store.Close() }

// Store exposes the local mirror for read queries and subscriptions.
func (r *Replica) Store() *store.Store { return r.store }

// replicaContext adapts the local store for mutation execution. Every
// primitive write snapshots the fact it lands on into the rebase log, so
// the next pull can unwind the speculative layer; when a recorder is also
// attached, the write's inverse is captured for undo. RunOnServer is a
// no-op here: those side effects belong to the authoritative run only.
type replicaContext struct {
	*store.Store
	spec *[]rebaseEntry
	rec  *actionRecorder
}

func (c *replicaContext) RunOnServer(func(ctx context.Context) error) {}

func (c *replicaContext) snapshot(id string, prev *facts.Fact) {
	if c.spec != nil {
		*c.spec = append(*c.spec, rebaseEntry{id: id, prev: prev})
	}
}

func (c *replicaContext) AssertFact(ctx context.Context, a facts.Assertion) (facts.Result, error) {
	// a cardinality-one assert lands on the slot's current fact id, an
	// explicit id on that fact, anything else mints a new one
	var existing *facts.Fact
	if schema, ok := facts.Resolve(a.Attribute); ok && schema.Cardinality == facts.One {
		var err error
		existing, err = c.Store.EAVOne(a.Entity, a.Attribute)
		if err != nil {
			return facts.Result{}, err
		}
	}
	var prev *facts.Fact
	if targetID := a.FactID; existing != nil || targetID != "" {
		if existing != nil {
			targetID = existing.ID
		}
		var err error
		prev, err = c.Store.GetFact(targetID)
		if err != nil {
			return facts.Result{}, err
		}
	}

	res, err := c.Store.AssertFact(ctx, a)
	if err != nil || !res.Success {
		return res, err
	}
	c.snapshot(res.FactID, prev)
	if c.rec != nil {
		if existing != nil {
			c.rec.add(*assertOp(facts.Assertion{
				Entity:    existing.Entity,
				Attribute: existing.Attribute,
				Value:     existing.Value,
				FactID:    existing.ID,
				Positions: existing.Positions,
			}))
		} else {
			c.rec.add(*retractOp(res.FactID))
		}
	}
	return res, err
}

func (c *replicaContext) RetractFact(ctx context.Context, id string) error {
	existing, err := c.Store.GetFact(id)
	if err != nil {
		return err
	}
	if existing != nil {
		c.snapshot(id, existing)
		if c.rec != nil && !existing.Retracted {
			c.rec.add(*assertOp(facts.Assertion{
				Entity:    existing.Entity,
				Attribute: existing.Attribute,
				Value:     existing.Value,
				FactID:    existing.ID,
				Positions: existing.Positions,
			}))
		}
	}
	return c.Store.RetractFact(ctx, id)
}

func (c *replicaContext) UpdateFact(ctx context.Context, id string, u facts.Update) (facts.Result, error) {
	existing, err := c.Store.GetFact(id)
	if err != nil {
		return facts.Result{}, err
	}
	if existing != nil {
		c.snapshot(id, existing)
		if c.rec != nil {
			attr := existing.Attribute
			val := existing.Value
			c.rec.add(*updateOp(id, facts.Update{
				Attribute: &attr,
				Value:     &val,
				Positions: existing.Positions,
			}))
		}
	}
	return c.Store.UpdateFact(ctx, id, u)
}

// Mutate runs a named mutation against the local mirror and queues it for
// push. The server will replay the same function; whatever it derives is
// what eventually sticks.
func (r *Replica) Mutate(ctx context.Context, name string, args any) error {
	return r.mutate(ctx, name, args, true)
}

func (r *Replica) mutate(ctx context.Context, name string, args any, undoable bool) error {
	fn, ok := mutations.Lookup(name)
	if !ok {
		return errors.Errorf("mud: unknown mutation %q", name)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	mctx := &replicaContext{Store: r.store, spec: &r.rebase}
	if undoable {
		mctx.rec = &actionRecorder{}
	}
	if err := fn(ctx, raw, mctx); err != nil {
		return err
	}

	r.nextID++
	r.pending = append(r.pending, protocol.Mutation{
		ID:        r.nextID,
		Name:      name,
		Args:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
	if undoable && len(mctx.rec.inverse) > 0 {
		r.undo.Record(Action{
			Forward: []Op{{Name: name, Args: raw}},
			Inverse: mctx.rec.ops(),
		})
	}
	return nil
}

// PendingCount reports how many mutations await server acknowledgement.
func (r *Replica) PendingCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.pending)
}

// Push sends the pending queue. The queue is not cleared here; mutations
// drop off once a pull shows the server's watermark has passed them.
func (r *Replica) Push(ctx context.Context) error {
	if r.client == nil {
		return errors.New("mud: replica has no server")
	}
	r.lock.Lock()
	muts := append([]protocol.Mutation(nil), r.pending...)
	r.lock.Unlock()
	if len(muts) == 0 {
		return nil
	}
	resp, err := r.client.Push(ctx, muts)
	if err != nil {
		return err
	}
	for _, e := range resp.Errors {
		r.log.WarnCtx(ctx, "push rejected", "err", e)
	}
	return nil
}

// Pull reconciles the mirror: roll the speculative layer back so the
// store matches the last authoritative base, apply the server's patch,
// drop acknowledged mutations, then replay the still-unacknowledged ones
// on top of the new base.
func (r *Replica) Pull(ctx context.Context) error {
	if r.client == nil {
		return errors.New("mud: replica has no server")
	}
	r.lock.Lock()
	cookie := r.cookie
	r.lock.Unlock()

	resp, err := r.client.Pull(ctx, cookie)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	// newest first, so repeated writes to one fact unwind to its oldest
	// snapshot
	for i := len(r.rebase) - 1; i >= 0; i-- {
		e := r.rebase[i]
		if err := r.store.RevertFact(e.id, e.prev); err != nil {
			return err
		}
	}
	r.rebase = r.rebase[:0]

	if err := r.applyPatch(resp.Patch); err != nil {
		return err
	}
	r.cookie = resp.Cookie

	kept := r.pending[:0]
	for _, m := range r.pending {
		if m.ID > resp.LastMutationID {
			kept = append(kept, m)
		}
	}
	r.pending = kept

	for _, m := range r.pending {
		fn, ok := mutations.Lookup(m.Name)
		if !ok {
			continue
		}
		if err := fn(ctx, m.Args, &replicaContext{Store: r.store, spec: &r.rebase}); err != nil {
			r.log.WarnCtx(ctx, "replaying pending mutation", "name", m.Name, "err", err)
		}
	}
	return nil
}

func (r *Replica) applyPatch(patch []protocol.PatchOp) error {
	for _, op := range patch {
		switch op.Op {
		case protocol.OpDel:
			if err := r.store.ApplyRetraction(op.Key); err != nil {
				return err
			}
		case protocol.OpPut:
			// facts and messages share the patch; an attribute marks a fact
			var head struct {
				Attribute string `json:"attribute"`
			}
			if err := json.Unmarshal(op.Value, &head); err != nil {
				return err
			}
			if head.Attribute != "" {
				var wf facts.WireFact
				if err := json.Unmarshal(op.Value, &wf); err != nil {
					return err
				}
				if err := r.store.ApplyFact(wf.Fact); err != nil {
					return err
				}
				continue
			}
			var wm facts.WireMessage
			if err := json.Unmarshal(op.Value, &wm); err != nil {
				return err
			}
			if err := r.store.ApplyMessage(wm.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

// Listen watches the space's poke channel and pulls on every hint. It
// reconnects until the context ends; pokes are a latency optimization, so
// any failure here degrades to plain polling by the caller.
func (r *Replica) Listen(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := r.client.Socket(ctx)
		if err != nil {
			r.log.DebugCtx(ctx, "poke socket dial failed", "err", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			if err := r.Pull(ctx); err != nil {
				r.log.WarnCtx(ctx, "pull after poke failed", "err", err)
			}
		}
		stop()
		conn.Close()
	}
}
