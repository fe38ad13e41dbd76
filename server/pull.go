package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/protocol"
)

// Pull returns everything created or retracted since the request cookie as
// a patch, plus the new cookie and the caller's authoritative watermark.
// Correctness of sync rests entirely here; the poke is only a hint to call
// this sooner.
func (sp *Space) Pull(ctx context.Context, req protocol.PullRequest) (protocol.PullResponse, error) {
	start := time.Now()
	defer func() { pullDuration.Observe(time.Since(start).Seconds()) }()

	cookie, err := protocol.DecodeCookie(req.Cookie)
	if err != nil {
		return protocol.PullResponse{}, err
	}

	changed, factMark, err := sp.store.FactsSince(cookie.Facts)
	if err != nil {
		return protocol.PullResponse{}, err
	}
	msgs, msgMark, err := sp.store.MessagesSince(cookie.Messages)
	if err != nil {
		return protocol.PullResponse{}, err
	}

	patch := make([]protocol.PatchOp, 0, len(changed)+len(msgs))
	for _, f := range changed {
		if f.Retracted {
			patch = append(patch, protocol.PatchOp{Op: protocol.OpDel, Key: f.ID})
			continue
		}
		raw, err := json.Marshal(facts.WithIndexes(f))
		if err != nil {
			return protocol.PullResponse{}, err
		}
		patch = append(patch, protocol.PatchOp{Op: protocol.OpPut, Key: f.ID, Value: raw})
	}
	for _, m := range msgs {
		raw, err := json.Marshal(facts.MessageWithIndexes(m))
		if err != nil {
			return protocol.PullResponse{}, err
		}
		patch = append(patch, protocol.PatchOp{Op: protocol.OpPut, Key: m.ID, Value: raw})
	}

	last, err := sp.LastMutationID(req.ClientID)
	if err != nil {
		return protocol.PullResponse{}, err
	}

	return protocol.PullResponse{
		LastMutationID: last,
		Cookie:         protocol.Cookie{Facts: factMark, Messages: msgMark}.Encode(),
		Patch:          patch,
	}, nil
}
