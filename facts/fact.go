// Package facts holds the fact data model and the attribute schema registry
// shared verbatim by the authoritative server store and every client
// replica. Nothing in here may touch storage or the network.
package facts

import (
	"fmt"
	"sort"
	"time"
)

type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Schema describes one attribute: the shape of its values, how many live
// facts an (entity, attribute) slot may hold, and whether a value may be
// held by at most one entity store-wide.
type Schema struct {
	Type        ValueKind   `json:"type"`
	Cardinality Cardinality `json:"cardinality"`
	Unique      bool        `json:"unique"`
	UnionValues []string    `json:"union/value,omitempty"`
}

// Fact is the atomic unit of truth. Facts are never hard-deleted, only
// marked retracted. The schema in force at write time is frozen into the
// fact so index maintenance never needs a second registry lookup.
type Fact struct {
	ID          string            `json:"id"`
	Entity      string            `json:"entity"`
	Attribute   string            `json:"attribute"`
	Value       Value             `json:"value"`
	Retracted   bool              `json:"retracted,omitempty"`
	LastUpdated string            `json:"lastUpdated"`
	Schema      Schema            `json:"schema"`
	Positions   map[string]string `json:"positions,omitempty"`
}

// Now renders a wall-clock timestamp as a fixed-width decimal millisecond
// string. Fixed width keeps the time index lexicographically ordered.
func Now() string {
	return Stamp(time.Now())
}

func Stamp(t time.Time) string {
	return fmt.Sprintf("%016d", t.UnixMilli())
}

// SortByPosition orders parent-typed sibling facts by their fractional sort
// key, breaking ties by fact id so the order is total on every replica.
func SortByPosition(fs []Fact) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i].Value.Position, fs[j].Value.Position
		if a == b {
			return fs[i].ID < fs[j].ID
		}
		return a < b
	})
}

// IndexKeys are the denormalized client-mirror keys attached to a fact at
// serialization time, so a replica can populate its local index without
// re-deriving them.
type IndexKeys struct {
	EAV string `json:"eav"`
	AEV string `json:"aev"`
	AVE string `json:"ave,omitempty"`
	VAE string `json:"vae,omitempty"`
}

// WireFact is the pull-patch shape of a fact.
type WireFact struct {
	Fact
	Indexes IndexKeys `json:"indexes"`
}

// WithIndexes computes the denormalized mirror keys for a fact.
func WithIndexes(f Fact) WireFact {
	keys := IndexKeys{
		EAV: f.Entity + "\x00" + f.Attribute + "\x00" + f.ID,
		AEV: f.Attribute + "\x00" + f.Entity + "\x00" + f.ID,
	}
	if f.Schema.Unique {
		keys.AVE = f.Attribute + "\x00" + string(f.Value.Canonical())
	}
	if f.Value.IsRef() {
		keys.VAE = f.Value.Target() + "\x00" + f.Attribute + "\x00" + f.ID
	}
	return WireFact{Fact: f, Indexes: keys}
}
