package mutations

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/store"
)

// testContext runs mutations directly against a store, the way a replica
// does: RunOnServer side effects are dropped.
type testContext struct {
	*store.Store
}

func (testContext) RunOnServer(func(ctx context.Context) error) {}

func newContext(t *testing.T) testContext {
	t.Helper()
	s, err := store.Open(t.TempDir(), store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return testContext{s}
}

func run(t *testing.T, m Context, name string, args any) {
	t.Helper()
	fn, ok := Lookup(name)
	require.True(t, ok, "unknown mutation %s", name)
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	require.NoError(t, fn(context.Background(), raw, m))
}

func childOrder(t *testing.T, m Context, parent string) []string {
	t.Helper()
	fs, err := siblings(m, parent)
	require.NoError(t, err)
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Entity
	}
	return out
}

func TestAddChildBlockOrdering(t *testing.T) {
	m := newContext(t)

	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b2", "after": "b1"})
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b3", "before": "b2"})

	assert.Equal(t, []string{"b1", "b3", "b2"}, childOrder(t, m, "root"))
}

func TestAddChildBlockIsIdempotentPerSlot(t *testing.T) {
	m := newContext(t)

	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	// a replayed insert lands on the same cardinality-one slot
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})

	assert.Equal(t, []string{"b1"}, childOrder(t, m, "root"))
}

func TestIndentThenOutdentRestoresLevel(t *testing.T) {
	m := newContext(t)

	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b2", "after": "b1"})

	run(t, m, "indentBlock", map[string]any{"entityID": "b2"})
	assert.Equal(t, []string{"b1"}, childOrder(t, m, "root"))
	assert.Equal(t, []string{"b2"}, childOrder(t, m, "b1"))

	run(t, m, "outdentBlock", map[string]any{"entityID": "b2"})
	assert.Equal(t, []string{"b1", "b2"}, childOrder(t, m, "root"))
	assert.Empty(t, childOrder(t, m, "b1"))
}

func TestIndentFirstChildIsNoop(t *testing.T) {
	m := newContext(t)
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	run(t, m, "indentBlock", map[string]any{"entityID": "b1"})
	assert.Equal(t, []string{"b1"}, childOrder(t, m, "root"))
}

func TestOutdentTopLevelIsNoop(t *testing.T) {
	m := newContext(t)
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	run(t, m, "outdentBlock", map[string]any{"entityID": "b1"})
	assert.Equal(t, []string{"b1"}, childOrder(t, m, "root"))
}

func TestMoveBlockUpAndDown(t *testing.T) {
	m := newContext(t)
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b2", "after": "b1"})
	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b3", "after": "b2"})

	run(t, m, "moveBlockUp", map[string]any{"entityID": "b3"})
	assert.Equal(t, []string{"b1", "b3", "b2"}, childOrder(t, m, "root"))

	run(t, m, "moveBlockDown", map[string]any{"entityID": "b3"})
	assert.Equal(t, []string{"b1", "b2", "b3"}, childOrder(t, m, "root"))

	// already at the edges
	run(t, m, "moveBlockUp", map[string]any{"entityID": "b1"})
	run(t, m, "moveBlockDown", map[string]any{"entityID": "b3"})
	assert.Equal(t, []string{"b1", "b2", "b3"}, childOrder(t, m, "root"))
}

func TestDeleteBlockRetractsInboundRefs(t *testing.T) {
	m := newContext(t)

	run(t, m, "addChildBlock", map[string]any{"parent": "root", "child": "b1"})
	run(t, m, "updateBlockContent", map[string]any{"entity": "b1", "content": "some text"})
	run(t, m, "addCardToCollection", map[string]any{"card": "b1", "collection": "deck1"})

	run(t, m, "deleteBlock", map[string]any{"entity": "b1"})

	subject, err := m.EAV("b1", "")
	require.NoError(t, err)
	assert.Empty(t, subject)

	inbound, err := m.VAE("b1", "")
	require.NoError(t, err)
	assert.Empty(t, inbound)
}

func TestDeleteEntityRecursesIntoChildren(t *testing.T) {
	m := newContext(t)

	run(t, m, "addChildBlock", map[string]any{"parent": "card", "child": "b1"})
	run(t, m, "addChildBlock", map[string]any{"parent": "b1", "child": "b2"})
	run(t, m, "updateBlockContent", map[string]any{"entity": "b2", "content": "leaf"})

	run(t, m, "deleteEntity", map[string]any{"entity": "card"})

	for _, e := range []string{"card", "b1", "b2"} {
		fs, err := m.EAV(e, "")
		require.NoError(t, err)
		assert.Empty(t, fs, "entity %s still has facts", e)
	}
}

func TestUpdateBlockContentSyncsTitle(t *testing.T) {
	m := newContext(t)

	run(t, m, "updateBlockContent", map[string]any{"entity": "c1", "content": "# Bird Facts\nbody"})
	title, err := m.EAVOne("c1", "card/title")
	require.NoError(t, err)
	require.NotNil(t, title)
	assert.Equal(t, "Bird Facts", title.Value.Str)

	// heading removed: title goes away
	run(t, m, "updateBlockContent", map[string]any{"entity": "c1", "content": "just body"})
	title, err = m.EAVOne("c1", "card/title")
	require.NoError(t, err)
	assert.Nil(t, title)
}

func TestUpdateBlockContentSyncsLinks(t *testing.T) {
	m := newContext(t)

	run(t, m, "createCard", map[string]any{"entityID": "apple", "title": "Apple"})
	run(t, m, "createCard", map[string]any{"entityID": "pear", "title": "Pear"})

	run(t, m, "updateBlockContent", map[string]any{
		"entity": "note", "content": "see [[Apple]] and [[Pear]]",
	})
	links, err := m.EAV("note", "inline-link-to")
	require.NoError(t, err)
	targets := map[string]bool{}
	for _, f := range links {
		targets[f.Value.Target()] = true
	}
	assert.Equal(t, map[string]bool{"apple": true, "pear": true}, targets)

	// dropping one link retracts its fact and keeps the other
	run(t, m, "updateBlockContent", map[string]any{
		"entity": "note", "content": "only [[Apple]] now",
	})
	links, err = m.EAV("note", "inline-link-to")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "apple", links[0].Value.Target())

	// links to titles that do not exist yet are skipped
	run(t, m, "updateBlockContent", map[string]any{
		"entity": "note", "content": "[[Apple]] and [[Nonexistent]]",
	})
	links, err = m.EAV("note", "inline-link-to")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestUpdateTitleFactRewritesLinkers(t *testing.T) {
	m := newContext(t)

	run(t, m, "createCard", map[string]any{"entityID": "apple", "title": "Apple"})
	run(t, m, "updateBlockContent", map[string]any{
		"entity": "note", "content": "see [[Apple]]",
	})

	run(t, m, "updateTitleFact", map[string]any{"entity": "apple", "title": "Crabapple"})

	title, err := m.EAVOne("apple", "card/title")
	require.NoError(t, err)
	require.NotNil(t, title)
	assert.Equal(t, "Crabapple", title.Value.Str)

	content, err := m.EAVOne("note", "block/content")
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "see [[Crabapple]]", content.Value.Str)

	// the reference itself keys on the entity and survives the rename
	links, err := m.EAV("note", "inline-link-to")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "apple", links[0].Value.Target())
}

func TestUpdateTitleToTakenTitleLeavesLinkersAlone(t *testing.T) {
	m := newContext(t)

	run(t, m, "createCard", map[string]any{"entityID": "apple", "title": "Apple"})
	run(t, m, "createCard", map[string]any{"entityID": "pear", "title": "Pear"})
	run(t, m, "updateBlockContent", map[string]any{
		"entity": "note", "content": "see [[Apple]]",
	})

	run(t, m, "updateTitleFact", map[string]any{"entity": "apple", "title": "Pear"})

	title, err := m.EAVOne("apple", "card/title")
	require.NoError(t, err)
	require.NotNil(t, title)
	assert.Equal(t, "Apple", title.Value.Str)

	content, err := m.EAVOne("note", "block/content")
	require.NoError(t, err)
	assert.Equal(t, "see [[Apple]]", content.Value.Str)
}

func TestAddCardToCollectionOrdering(t *testing.T) {
	m := newContext(t)

	run(t, m, "addCardToCollection", map[string]any{"card": "c1", "collection": "deck"})
	run(t, m, "addCardToCollection", map[string]any{"card": "c2", "collection": "deck", "after": "c1"})
	run(t, m, "addCardToCollection", map[string]any{"card": "c3", "collection": "deck", "after": "c1"})

	contains, err := m.EAV("deck", "deck/contains")
	require.NoError(t, err)
	sortByListPosition(contains)
	got := make([]string, len(contains))
	for i, f := range contains {
		got[i] = f.Value.Target()
	}
	assert.Equal(t, []string{"c1", "c3", "c2"}, got)
}

func TestCreateCardTitleTaken(t *testing.T) {
	m := newContext(t)

	run(t, m, "createCard", map[string]any{"entityID": "a", "title": "Dup", "content": "first"})
	run(t, m, "createCard", map[string]any{"entityID": "b", "title": "Dup", "content": "second"})

	owner, err := m.AVE("card/title", facts.String("Dup"))
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "a", owner.Entity)

	// the losing create writes nothing at all
	fs, err := m.EAV("b", "")
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestMemberJoin(t *testing.T) {
	m := newContext(t)

	run(t, m, "memberJoin", map[string]any{
		"memberEntity": "m1", "studio": "studio-a", "name": "alex",
	})

	member, err := m.EAVOne("m1", "space/member")
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, "studio-a", member.Value.Str)

	name, err := m.EAVOne("m1", "member/name")
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "alex", name.Value.Str)

	// second join for the same studio fails the unique check quietly
	run(t, m, "memberJoin", map[string]any{
		"memberEntity": "m2", "studio": "studio-a", "name": "alex again",
	})
	fs, err := m.EAV("m2", "")
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestParseLinks(t *testing.T) {
	assert.Equal(t, []string{"Apple", "Pear"}, parseLinks("[[Apple]] then [[Pear]] then [[Apple]]"))
	assert.Empty(t, parseLinks("no links here"))
	assert.Empty(t, parseLinks("[[]]"))
	assert.Equal(t, []string{"inner"}, parseLinks("[[nested [[inner]]"))
}

func TestParseTitle(t *testing.T) {
	title, ok := parseTitle("# Heading\nbody")
	require.True(t, ok)
	assert.Equal(t, "Heading", title)

	_, ok = parseTitle("body only")
	assert.False(t, ok)

	_, ok = parseTitle("## Not a top level heading")
	assert.False(t, ok)
}
