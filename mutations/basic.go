package mutations

import (
	"context"
	"encoding/json"

	"github.com/jaredpereira/mud/facts"
)

// assertFact accepts a single assertion or a batch of them.
func assertFact(ctx context.Context, raw json.RawMessage, m Context) error {
	var batch []facts.Assertion
	if err := json.Unmarshal(raw, &batch); err != nil {
		single, serr := decode[facts.Assertion](raw)
		if serr != nil {
			return serr
		}
		batch = []facts.Assertion{single}
	}
	for _, a := range batch {
		if _, err := m.AssertFact(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

type retractArgs struct {
	ID string `json:"id"`
}

func retractFact(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[retractArgs](raw)
	if err != nil {
		return err
	}
	return m.RetractFact(ctx, args.ID)
}

type updateArgs struct {
	ID   string       `json:"id"`
	Data facts.Update `json:"data"`
}

func updateFact(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[updateArgs](raw)
	if err != nil {
		return err
	}
	_, err = m.UpdateFact(ctx, args.ID, args.Data)
	return err
}

type entityArgs struct {
	Entity string `json:"entity"`
}

// deleteBlock retracts every fact the entity is the subject of and every
// fact pointing at it.
func deleteBlock(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[entityArgs](raw)
	if err != nil {
		return err
	}
	return retractEntity(ctx, m, args.Entity)
}

func retractEntity(ctx context.Context, m Context, entity string) error {
	subject, err := m.EAV(entity, "")
	if err != nil {
		return err
	}
	inbound, err := m.VAE(entity, "")
	if err != nil {
		return err
	}
	for _, f := range append(subject, inbound...) {
		if err := m.RetractFact(ctx, f.ID); err != nil {
			return err
		}
	}
	return nil
}

// deleteEntity is the recursive variant: descendants by block containment
// go first, depth-first, then the entity itself.
func deleteEntity(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[entityArgs](raw)
	if err != nil {
		return err
	}
	return deleteRecursive(ctx, m, args.Entity)
}

func deleteRecursive(ctx context.Context, m Context, entity string) error {
	children, err := m.VAE(entity, "block/parent")
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := deleteRecursive(ctx, m, c.Entity); err != nil {
			return err
		}
	}
	return retractEntity(ctx, m, entity)
}

func postMessage(ctx context.Context, raw json.RawMessage, m Context) error {
	msg, err := decode[facts.Message](raw)
	if err != nil {
		return err
	}
	_, err = m.PostMessage(ctx, msg)
	return err
}

type memberJoinArgs struct {
	MemberEntity string `json:"memberEntity"`
	Studio       string `json:"studio"`
	Name         string `json:"name"`
}

// memberJoin records a studio identity as a member of this space. The
// space/member value is unique, so a second join for the same studio lands
// on the same entity or fails quietly.
func memberJoin(ctx context.Context, raw json.RawMessage, m Context) error {
	args, err := decode[memberJoinArgs](raw)
	if err != nil {
		return err
	}
	res, err := m.AssertFact(ctx, facts.Assertion{
		Entity:    args.MemberEntity,
		Attribute: "space/member",
		Value:     facts.String(args.Studio),
	})
	if err != nil || !res.Success {
		return err
	}
	_, err = m.AssertFact(ctx, facts.Assertion{
		Entity:    args.MemberEntity,
		Attribute: "member/name",
		Value:     facts.String(args.Name),
	})
	return err
}
