// Package mutations is the closed registry of named transition functions.
// The same functions run speculatively on client replicas and
// authoritatively on the server, so everything in here must be
// deterministic given the store state and arguments, and must reach the
// store only through the Context capability interface. No storage, network
// or platform imports are allowed.
package mutations

import (
	"context"
	"encoding/json"

	"github.com/jaredpereira/mud/facts"
)

// Scanner is the read side of the capability interface: the four index
// patterns of the fact store.
type Scanner interface {
	EAV(entity, attribute string) ([]facts.Fact, error)
	EAVOne(entity, attribute string) (*facts.Fact, error)
	AEV(attribute, entity string) ([]facts.Fact, error)
	AVE(attribute string, value facts.Value) (*facts.Fact, error)
	VAE(target, attribute string) ([]facts.Fact, error)
}

// Context is everything a mutation may touch. RunOnServer schedules a
// server-only side effect after commit (push notifications and the like);
// it is a no-op on replicas and must never be load-bearing for the
// mutation's own store effects.
type Context interface {
	Scanner
	AssertFact(ctx context.Context, a facts.Assertion) (facts.Result, error)
	RetractFact(ctx context.Context, id string) error
	UpdateFact(ctx context.Context, id string, u facts.Update) (facts.Result, error)
	PostMessage(ctx context.Context, m facts.Message) (facts.Result, error)
	RunOnServer(fn func(ctx context.Context) error)
}

// Func is a registered mutation. Args arrive as raw JSON because dispatch
// happens by name at the sync boundary.
type Func func(ctx context.Context, args json.RawMessage, m Context) error

// Registry is the closed set of mutations. Client and server link this
// exact map; there is no second implementation of any business rule.
var Registry = map[string]Func{
	"assertFact":          assertFact,
	"retractFact":         retractFact,
	"updateFact":          updateFact,
	"deleteBlock":         deleteBlock,
	"deleteEntity":        deleteEntity,
	"addChildBlock":       addChildBlock,
	"indentBlock":         indentBlock,
	"outdentBlock":        outdentBlock,
	"moveBlockUp":         moveBlockUp,
	"moveBlockDown":       moveBlockDown,
	"updateBlockContent":  updateBlockContent,
	"updateTitleFact":     updateTitleFact,
	"addCardToCollection": addCardToCollection,
	"createCard":          createCard,
	"memberJoin":          memberJoin,
	"postMessage":         postMessage,
}

// Lookup returns the named mutation. The sync layer skips unknown names
// rather than failing a batch.
func Lookup(name string) (Func, bool) {
	f, ok := Registry[name]
	return f, ok
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
