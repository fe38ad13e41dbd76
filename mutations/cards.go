package mutations

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/fracindex"
)

type updateBlockContentArgs struct {
	Entity  string `json:"entity"`
	Content string `json:"content"`
}

// updateBlockContent rewrites a block's content and keeps its derived facts
// in step: the unique title parsed from a leading markdown heading, and the
// inline-link-to facts diffed from the [[wiki-link]] occurrences.
func updateBlockContent(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[updateBlockContentArgs](raw)
	if err != nil {
		return err
	}
	if _, err := m.AssertFact(ctx, facts.Assertion{
		Entity:    args.Entity,
		Attribute: "block/content",
		Value:     facts.String(args.Content),
	}); err != nil {
		return err
	}

	if err := syncTitle(ctx, m, args.Entity, args.Content); err != nil {
		return err
	}
	return syncLinks(ctx, m, args.Entity, args.Content)
}

func syncTitle(ctx context.Context, m Context, entity, content string) error {
	title, ok := parseTitle(content)
	current, err := m.EAVOne(entity, "card/title")
	if err != nil {
		return err
	}
	if !ok {
		if current != nil {
			return m.RetractFact(ctx, current.ID)
		}
		return nil
	}
	if current != nil && current.Value.Str == title {
		return nil
	}
	// a uniqueness collision here fails quietly; the content keeps its
	// heading, the slot keeps its owner
	_, err = m.AssertFact(ctx, facts.Assertion{
		Entity:    entity,
		Attribute: "card/title",
		Value:     facts.String(title),
	})
	return err
}

func syncLinks(ctx context.Context, m Context, entity, content string) error {
	wanted := map[string]bool{}
	for _, name := range parseLinks(content) {
		wanted[name] = true
	}

	existing, err := m.EAV(entity, "inline-link-to")
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for _, f := range existing {
		title, err := m.EAVOne(f.Value.Target(), "card/title")
		if err != nil {
			return err
		}
		name := ""
		if title != nil {
			name = title.Value.Str
		}
		if name == "" || !wanted[name] {
			if err := m.RetractFact(ctx, f.ID); err != nil {
				return err
			}
			continue
		}
		have[name] = true
	}

	for _, name := range parseLinks(content) {
		if have[name] {
			continue
		}
		target, err := m.AVE("card/title", facts.String(name))
		if err != nil {
			return err
		}
		if target == nil {
			continue // dangling link, nothing to point at yet
		}
		if _, err := m.AssertFact(ctx, facts.Assertion{
			Entity:    entity,
			Attribute: "inline-link-to",
			Value:     facts.Ref(target.Entity),
		}); err != nil {
			return err
		}
	}
	return nil
}

type updateTitleArgs struct {
	Entity string `json:"entity"`
	Title  string `json:"title"`
}

// updateTitleFact renames a card. Every block that links to it holds the
// old title as literal [[...]] text, so a rename rewrites those contents
// too; the link facts themselves key on the entity and survive unchanged.
func updateTitleFact(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[updateTitleArgs](raw)
	if err != nil {
		return err
	}
	current, err := m.EAVOne(args.Entity, "card/title")
	if err != nil {
		return err
	}
	oldTitle := ""
	if current != nil {
		oldTitle = current.Value.Str
	}
	if oldTitle == args.Title {
		return nil
	}
	res, err := m.AssertFact(ctx, facts.Assertion{
		Entity:    args.Entity,
		Attribute: "card/title",
		Value:     facts.String(args.Title),
	})
	if err != nil || !res.Success || oldTitle == "" {
		return err
	}

	linkers, err := m.VAE(args.Entity, "inline-link-to")
	if err != nil {
		return err
	}
	for _, lf := range linkers {
		contentFact, err := m.EAVOne(lf.Entity, "block/content")
		if err != nil {
			return err
		}
		if contentFact == nil {
			continue
		}
		rewritten := strings.ReplaceAll(contentFact.Value.Str,
			"[["+oldTitle+"]]", "[["+args.Title+"]]")
		if rewritten == contentFact.Value.Str {
			continue
		}
		if _, err := m.AssertFact(ctx, facts.Assertion{
			Entity:    lf.Entity,
			Attribute: "block/content",
			Value:     facts.String(rewritten),
		}); err != nil {
			return err
		}
	}
	return nil
}

type addCardToCollectionArgs struct {
	Card       string `json:"card"`
	Collection string `json:"collection"`
	FactID     string `json:"factID,omitempty"`
	After      string `json:"after,omitempty"`
}

// addCardToCollection appends a deck/contains reference, positioned in the
// collection's ordered list via the fact's positions map.
func addCardToCollection(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[addCardToCollectionArgs](raw)
	if err != nil {
		return err
	}
	contains, err := m.EAV(args.Collection, "deck/contains")
	if err != nil {
		return err
	}
	sortByListPosition(contains)

	index := len(contains) - 1
	if args.After != "" {
		for i := range contains {
			if contains[i].Value.Target() == args.After {
				index = i
				break
			}
		}
	}
	left, right := "", ""
	if index >= 0 && index < len(contains) {
		left = contains[index].Positions["eav"]
	}
	if index+1 < len(contains) {
		right = contains[index+1].Positions["eav"]
	}
	position, err := fracindex.KeyBetween(left, right)
	if err != nil {
		return err
	}
	_, err = m.AssertFact(ctx, facts.Assertion{
		FactID:    args.FactID,
		Entity:    args.Collection,
		Attribute: "deck/contains",
		Value:     facts.Ref(args.Card),
		Positions: map[string]string{"eav": position},
	})
	return err
}

func sortByListPosition(fs []facts.Fact) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i].Positions["eav"], fs[j].Positions["eav"]
		if a == b {
			return fs[i].ID < fs[j].ID
		}
		return a < b
	})
}

type createCardArgs struct {
	Entity       string `json:"entityID"`
	Title        string `json:"title"`
	Content      string `json:"content,omitempty"`
	MemberEntity string `json:"memberEntity,omitempty"`
}

// createCard mints a card with a unique title. If the title is taken the
// whole mutation quietly does nothing; find-or-create flows check AVE
// first.
func createCard(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[createCardArgs](raw)
	if err != nil {
		return err
	}
	res, err := m.AssertFact(ctx, facts.Assertion{
		Entity:    args.Entity,
		Attribute: "card/title",
		Value:     facts.String(args.Title),
	})
	if err != nil || !res.Success {
		return err
	}
	if args.Content != "" {
		if _, err := m.AssertFact(ctx, facts.Assertion{
			Entity:    args.Entity,
			Attribute: "card/content",
			Value:     facts.String(args.Content),
		}); err != nil {
			return err
		}
	}
	if args.MemberEntity != "" {
		if _, err := m.AssertFact(ctx, facts.Assertion{
			Entity:    args.Entity,
			Attribute: "card/created-by",
			Value:     facts.Ref(args.MemberEntity),
		}); err != nil {
			return err
		}
	}
	return nil
}
