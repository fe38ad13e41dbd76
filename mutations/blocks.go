package mutations

import (
	"context"
	"encoding/json"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/fracindex"
)

// siblings returns the live children of a parent ordered by fractional
// position.
func siblings(m Context, parent string) ([]facts.Fact, error) {
	fs, err := m.VAE(parent, "block/parent")
	if err != nil {
		return nil, err
	}
	facts.SortByPosition(fs)
	return fs, nil
}

func positionAt(fs []facts.Fact, i int) string {
	if i < 0 || i >= len(fs) {
		return ""
	}
	return fs[i].Value.Position
}

func indexOfEntity(fs []facts.Fact, entity string) int {
	for i := range fs {
		if fs[i].Entity == entity {
			return i
		}
	}
	return -1
}

type addChildBlockArgs struct {
	Parent string `json:"parent"`
	FactID string `json:"factID"`
	Child  string `json:"child"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// addChildBlock inserts child into parent's sibling list, before or after a
// named neighbor, at a fractional position between its new neighbors.
func addChildBlock(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[addChildBlockArgs](raw)
	if err != nil {
		return err
	}
	children, err := siblings(m, args.Parent)
	if err != nil {
		return err
	}
	var index int
	if args.Before != "" {
		index = indexOfEntity(children, args.Before) - 1
	} else {
		index = indexOfEntity(children, args.After)
	}
	position, err := fracindex.KeyBetween(positionAt(children, index), positionAt(children, index+1))
	if err != nil {
		return err
	}
	_, err = m.AssertFact(ctx, facts.Assertion{
		FactID:    args.FactID,
		Entity:    args.Child,
		Attribute: "block/parent",
		Value:     facts.Parent(args.Parent, position),
	})
	return err
}

type blockArgs struct {
	EntityID string `json:"entityID"`
	FactID   string `json:"factID,omitempty"`
}

// indentBlock makes the block the last child of its previous sibling.
func indentBlock(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[blockArgs](raw)
	if err != nil {
		return err
	}
	parent, err := m.EAVOne(args.EntityID, "block/parent")
	if err != nil || parent == nil {
		return err
	}
	sibs, err := siblings(m, parent.Value.Target())
	if err != nil {
		return err
	}
	position := indexOfEntity(sibs, args.EntityID)
	if position < 1 {
		return nil
	}
	newParent := sibs[position-1].Entity
	newSibs, err := siblings(m, newParent)
	if err != nil {
		return err
	}
	key, err := fracindex.KeyBetween(positionAt(newSibs, len(newSibs)-1), "")
	if err != nil {
		return err
	}
	return updateParent(ctx, m, parent.ID, newParent, key)
}

// outdentBlock moves the block up a level, placing it right after its
// current parent among the grandparent's children.
func outdentBlock(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[blockArgs](raw)
	if err != nil {
		return err
	}
	parent, err := m.EAVOne(args.EntityID, "block/parent")
	if err != nil || parent == nil {
		return err
	}
	grandParent, err := m.EAVOne(parent.Value.Target(), "block/parent")
	if err != nil || grandParent == nil {
		return err
	}
	grandSibs, err := siblings(m, grandParent.Value.Target())
	if err != nil {
		return err
	}
	position := indexOfEntity(grandSibs, parent.Value.Target())
	if position < 0 {
		return nil
	}
	key, err := fracindex.KeyBetween(positionAt(grandSibs, position), positionAt(grandSibs, position+1))
	if err != nil {
		return err
	}
	return updateParent(ctx, m, parent.ID, grandParent.Value.Target(), key)
}

func moveBlockUp(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[blockArgs](raw)
	if err != nil {
		return err
	}
	parent, err := m.EAVOne(args.EntityID, "block/parent")
	if err != nil || parent == nil {
		return err
	}
	sibs, err := siblings(m, parent.Value.Target())
	if err != nil {
		return err
	}
	position := indexOfEntity(sibs, args.EntityID)
	if position <= 0 {
		return nil
	}
	key, err := fracindex.KeyBetween(positionAt(sibs, position-2), positionAt(sibs, position-1))
	if err != nil {
		return err
	}
	return updateParent(ctx, m, parent.ID, parent.Value.Target(), key)
}

func moveBlockDown(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[blockArgs](raw)
	if err != nil {
		return err
	}
	parent, err := m.EAVOne(args.EntityID, "block/parent")
	if err != nil || parent == nil {
		return err
	}
	sibs, err := siblings(m, parent.Value.Target())
	if err != nil {
		return err
	}
	position := indexOfEntity(sibs, args.EntityID)
	if position < 0 || position == len(sibs)-1 {
		return nil
	}
	key, err := fracindex.KeyBetween(positionAt(sibs, position+1), positionAt(sibs, position+2))
	if err != nil {
		return err
	}
	return updateParent(ctx, m, parent.ID, parent.Value.Target(), key)
}

func updateParent(ctx context.Context, m Context, factID, parent, position string) error {
	v := facts.Parent(parent, position)
	_, err := m.UpdateFact(ctx, factID, facts.Update{Value: &v})
	return err
}
