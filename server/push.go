package server

import (
	"context"
	"fmt"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/mutations"
	"github.com/jaredpereira/mud/protocol"
)

func watermarkKey(clientID string) string { return "lastMutationID-" + clientID }

// LastMutationID returns the persisted watermark for a client.
func (sp *Space) LastMutationID(clientID string) (uint64, error) {
	v, _, err := sp.store.MetaInt64(watermarkKey(clientID))
	return uint64(v), err
}

// Push replays a client's mutation batch against the authoritative store.
// The watermark advances past every mutation the server has decided about,
// including unknown names and failed runs, so a bad mutation can never
// wedge a client's queue. Non-members drain without executing anything.
func (sp *Space) Push(ctx context.Context, session *Session, req protocol.PushRequest) (protocol.PushResponse, error) {
	sp.pushLock.Lock()
	defer sp.pushLock.Unlock()

	pushBatches.Inc()
	if len(req.Mutations) == 0 {
		return protocol.PushResponse{Success: true, Errors: []string{}}, nil
	}

	if req.SchemaVersion != facts.SchemaVersion {
		// the client is built against a different registry; draining its
		// queue would replay mutations under the wrong schemas
		sp.log.WarnCtx(ctx, "push with mismatched schema version",
			"client", req.ClientID, "got", req.SchemaVersion, "want", facts.SchemaVersion)
		return protocol.PushResponse{Errors: []string{"schema version mismatch"}}, nil
	}

	last, err := sp.LastMutationID(req.ClientID)
	if err != nil {
		return protocol.PushResponse{}, err
	}

	member, err := sp.IsMember(session.Studio)
	if err != nil {
		return protocol.PushResponse{}, err
	}
	if !member {
		last = req.Mutations[len(req.Mutations)-1].ID
		if err := sp.store.SetMetaInt64(watermarkKey(req.ClientID), int64(last)); err != nil {
			return protocol.PushResponse{}, err
		}
		return protocol.PushResponse{Errors: []string{"user is not a member"}}, nil
	}

	mctx := &spaceContext{Store: sp.store}
	for _, mut := range req.Mutations {
		if mut.ID <= last {
			mutationsApplied.WithLabelValues("skipped").Inc()
			continue
		}
		last = mut.ID
		fn, ok := mutations.Lookup(mut.Name)
		if !ok {
			sp.log.WarnCtx(ctx, "unknown mutation", "name", mut.Name, "client", req.ClientID)
			mutationsApplied.WithLabelValues("unknown").Inc()
			continue
		}
		if err := sp.runMutation(ctx, fn, mut, mctx); err != nil {
			sp.log.ErrorCtx(ctx, "mutation failed", "name", mut.Name,
				"id", mut.ID, "client", req.ClientID, "err", err)
			mutationsApplied.WithLabelValues("failed").Inc()
			continue
		}
		mutationsApplied.WithLabelValues("ok").Inc()
	}

	if err := sp.store.SetMetaInt64(watermarkKey(req.ClientID), int64(last)); err != nil {
		return protocol.PushResponse{}, err
	}

	mctx.flush(ctx, sp.log)
	sp.hub.Poke()
	return protocol.PushResponse{Success: true, Errors: []string{}}, nil
}

// runMutation isolates one mutation: an error or panic is contained and the
// batch moves on. Partial-batch application is accepted; there is no
// rollback.
func (sp *Space) runMutation(ctx context.Context, fn mutations.Func, mut protocol.Mutation, mctx mutations.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutation panic: %v", r)
		}
	}()
	return fn(ctx, mut.Args, mctx)
}
