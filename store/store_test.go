package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredpereira/mud/facts"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAssertAndRead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("hello"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.FactID)

	f, err := s.EAVOne("e1", "block/content")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "hello", f.Value.Str)
	assert.Equal(t, res.FactID, f.ID)
	assert.NotEmpty(t, f.LastUpdated)

	byAttr, err := s.AEV("block/content", "e1")
	require.NoError(t, err)
	require.Len(t, byAttr, 1)
	assert.Equal(t, res.FactID, byAttr[0].ID)
}

func TestRetractHidesFact(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("to be removed"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	require.NoError(t, s.RetractFact(ctx, res.FactID))

	f, err := s.EAVOne("e1", "block/content")
	require.NoError(t, err)
	assert.Nil(t, f)

	got, err := s.GetFact(res.FactID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Retracted)
}

func TestRetractUnknownIsNoop(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.RetractFact(context.Background(), "missing"))
}

func TestCardinalityOneReusesFactID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("one"),
	})
	require.NoError(t, err)

	second, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("two"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.FactID, second.FactID)

	all, err := s.EAV("e1", "block/content")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "two", all[0].Value.Str)
}

func TestConcurrentCardinalityOneConverges(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, v := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			_, err := s.AssertFact(ctx, Assertion{
				Entity:    "e1",
				Attribute: "block/content",
				Value:     facts.String(v),
			})
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	all, err := s.EAV("e1", "block/content")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCardinalityManyAccumulates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, target := range []string{"c1", "c2", "c3"} {
		_, err := s.AssertFact(ctx, Assertion{
			Entity:    "deck",
			Attribute: "deck/contains",
			Value:     facts.Ref(target),
		})
		require.NoError(t, err)
	}

	all, err := s.EAV("deck", "deck/contains")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	backlinks, err := s.VAE("c2", "deck/contains")
	require.NoError(t, err)
	require.Len(t, backlinks, 1)
	assert.Equal(t, "deck", backlinks[0].Entity)
}

func TestUniqueConstraint(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "card-a",
		Attribute: "card/title",
		Value:     facts.String("Bird Facts"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	dup, err := s.AssertFact(ctx, Assertion{
		Entity:    "card-b",
		Attribute: "card/title",
		Value:     facts.String("Bird Facts"),
	})
	require.NoError(t, err)
	assert.False(t, dup.Success)

	owner, err := s.AVE("card/title", facts.String("Bird Facts"))
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "card-a", owner.Entity)

	// re-asserting the same value on the owning entity is allowed
	again, err := s.AssertFact(ctx, Assertion{
		Entity:    "card-a",
		Attribute: "card/title",
		Value:     facts.String("Bird Facts"),
	})
	require.NoError(t, err)
	assert.True(t, again.Success)
}

func TestUniqueValueFreedAfterRetraction(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "card-a",
		Attribute: "card/title",
		Value:     facts.String("Taken"),
	})
	require.NoError(t, err)
	require.NoError(t, s.RetractFact(ctx, res.FactID))

	other, err := s.AssertFact(ctx, Assertion{
		Entity:    "card-b",
		Attribute: "card/title",
		Value:     facts.String("Taken"),
	})
	require.NoError(t, err)
	assert.True(t, other.Success)
}

func TestUnknownAttributeRejected(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	before, _, err := s.FactsSince(nil)
	require.NoError(t, err)

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "no/such-attribute",
		Value:     facts.String("x"),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)

	after, _, err := s.FactsSince(nil)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestUpdateFactValue(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("old"),
	})
	require.NoError(t, err)

	v := facts.String("new")
	up, err := s.UpdateFact(ctx, res.FactID, Update{Value: &v})
	require.NoError(t, err)
	require.True(t, up.Success)

	f, err := s.EAVOne("e1", "block/content")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "new", f.Value.Str)
}

func TestUpdateFactAttribute(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("body"),
	})
	require.NoError(t, err)

	// same type, cardinality and uniqueness: allowed
	attr := "card/content"
	up, err := s.UpdateFact(ctx, res.FactID, Update{Attribute: &attr})
	require.NoError(t, err)
	require.True(t, up.Success)

	gone, err := s.EAVOne("e1", "block/content")
	require.NoError(t, err)
	assert.Nil(t, gone)

	moved, err := s.EAVOne("e1", "card/content")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, "body", moved.Value.Str)
}

func TestUpdateFactRejectsSchemaClassChange(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("body"),
	})
	require.NoError(t, err)

	// string -> unique string is a different schema class
	attr := "card/title"
	up, err := s.UpdateFact(ctx, res.FactID, Update{Attribute: &attr})
	require.NoError(t, err)
	assert.False(t, up.Success)

	f, err := s.EAVOne("e1", "block/content")
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestUpdateUnknownFact(t *testing.T) {
	s := testStore(t)
	v := facts.String("x")
	up, err := s.UpdateFact(context.Background(), "missing", Update{Value: &v})
	require.NoError(t, err)
	assert.False(t, up.Success)
}

func TestStaleIndexEntriesRemoved(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/parent",
		Value:     facts.Parent("p1", "a0"),
	})
	require.NoError(t, err)

	_, err = s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/parent",
		Value:     facts.Parent("p2", "a0"),
		FactID:    res.FactID,
	})
	require.NoError(t, err)

	old, err := s.VAE("p1", "block/parent")
	require.NoError(t, err)
	assert.Empty(t, old)

	cur, err := s.VAE("p2", "block/parent")
	require.NoError(t, err)
	require.Len(t, cur, 1)
	assert.Equal(t, "e1", cur[0].Entity)
}

func TestApplyFactDisplacesSpeculativeSlot(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	local, err := s.AssertFact(ctx, Assertion{
		Entity:    "e1",
		Attribute: "block/content",
		Value:     facts.String("speculative"),
	})
	require.NoError(t, err)

	schema, ok := facts.Resolve("block/content")
	require.True(t, ok)
	authoritative := facts.Fact{
		ID:          facts.NewID(),
		Entity:      "e1",
		Attribute:   "block/content",
		Value:       facts.String("authoritative"),
		LastUpdated: facts.Now(),
		Schema:      schema,
	}
	require.NoError(t, s.ApplyFact(authoritative))

	all, err := s.EAV("e1", "block/content")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, authoritative.ID, all[0].ID)
	assert.Equal(t, "authoritative", all[0].Value.Str)

	gone, err := s.GetFact(local.FactID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestFactsSinceWatermark(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.AssertFact(ctx, Assertion{
		Entity: "e1", Attribute: "block/content", Value: facts.String("one"),
	})
	require.NoError(t, err)

	all, cursor, err := s.FactsSince(nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotEmpty(t, cursor)

	// nothing new past the cursor
	none, _, err := s.FactsSince(cursor)
	require.NoError(t, err)
	assert.Empty(t, none)

	res, err := s.AssertFact(ctx, Assertion{
		Entity: "e2", Attribute: "block/content", Value: facts.String("two"),
	})
	require.NoError(t, err)
	require.NoError(t, s.RetractFact(ctx, res.FactID))

	// retractions surface past the watermark so callers can emit deletes
	delta, _, err := s.FactsSince(cursor)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.True(t, delta[0].Retracted)
	assert.Equal(t, res.FactID, delta[0].ID)
}

func TestStampsAdvanceWithinMillisecond(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// pin the wall clock so assert and retract share a millisecond; the
	// retraction must still land past a watermark taken between them
	s.clock = func() string { return "0000000001000000" }

	res, err := s.AssertFact(ctx, Assertion{
		Entity: "e1", Attribute: "block/content", Value: facts.String("one"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	_, cursor, err := s.FactsSince(nil)
	require.NoError(t, err)
	require.NotEmpty(t, cursor)

	require.NoError(t, s.RetractFact(ctx, res.FactID))

	delta, _, err := s.FactsSince(cursor)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.True(t, delta[0].Retracted)
	assert.Equal(t, res.FactID, delta[0].ID)
}

func TestMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, content := range []string{"hi", "hello", "hey"} {
		res, err := s.PostMessage(ctx, facts.Message{
			ID:      facts.NewID(),
			Sender:  "m1",
			Content: content,
		})
		require.NoError(t, err)
		require.True(t, res.Success, "message %d", i)
	}

	msgs, cursor, err := s.MessagesSince(nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1), msgs[0].Index)
	assert.Equal(t, int64(3), msgs[2].Index)
	assert.Equal(t, "general", msgs[0].Topic)

	none, _, err := s.MessagesSince(cursor)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestApplyMessageRelocatesSpeculativeCopy(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := facts.NewID()
	_, err := s.PostMessage(ctx, facts.Message{ID: id, Sender: "m1", Content: "speculative"})
	require.NoError(t, err)

	require.NoError(t, s.ApplyMessage(facts.Message{
		ID: id, Topic: "general", Sender: "m1", Content: "speculative",
		TS: facts.Stamp(time.Now().Add(time.Minute)), Index: 5,
	}))

	msgs, _, err := s.MessagesSince(nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].Index)
}

func TestMeta(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.MetaInt64("lastMutationID-c1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetaInt64("lastMutationID-c1", 7))
	v, ok, err := s.MetaInt64("lastMutationID-c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
}
