package replica

import (
	"context"
	"encoding/json"

	"github.com/jaredpereira/mud/facts"
)

// Op is one recorded mutation invocation: a name from the registry plus its
// encoded args. Undo state is plain data, replayable in either direction;
// nothing here closes over live store state.
type Op struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Action pairs a user-visible mutation with the inverse ops that unwind
// it, in the order they were recorded.
type Action struct {
	Forward []Op
	Inverse []Op
}

// UndoStack is the per-replica undo/redo history. Recording a fresh action
// clears the redo side.
type UndoStack struct {
	undo []Action
	redo []Action
}

func (u *UndoStack) Record(a Action) {
	u.undo = append(u.undo, a)
	u.redo = nil
}

func (u *UndoStack) popUndo() (Action, bool) {
	if len(u.undo) == 0 {
		return Action{}, false
	}
	a := u.undo[len(u.undo)-1]
	u.undo = u.undo[:len(u.undo)-1]
	return a, true
}

func (u *UndoStack) popRedo() (Action, bool) {
	if len(u.redo) == 0 {
		return Action{}, false
	}
	a := u.redo[len(u.redo)-1]
	u.redo = u.redo[:len(u.redo)-1]
	return a, true
}

// actionRecorder collects inverse ops while a mutation runs.
type actionRecorder struct {
	inverse []Op
}

func (r *actionRecorder) add(op Op) { r.inverse = append(r.inverse, op) }

// ops returns the inverses in reverse order: the last write gets unwound
// first.
func (r *actionRecorder) ops() []Op {
	out := make([]Op, 0, len(r.inverse))
	for i := len(r.inverse) - 1; i >= 0; i-- {
		out = append(out, r.inverse[i])
	}
	return out
}

func assertOp(a facts.Assertion) *Op {
	raw, _ := json.Marshal(a)
	return &Op{Name: "assertFact", Args: raw}
}

func retractOp(id string) *Op {
	raw, _ := json.Marshal(map[string]string{"id": id})
	return &Op{Name: "retractFact", Args: raw}
}

func updateOp(id string, u facts.Update) *Op {
	raw, _ := json.Marshal(map[string]any{"id": id, "data": u})
	return &Op{Name: "updateFact", Args: raw}
}

// Undo unwinds the most recent action by running its inverse ops as new
// mutations; they queue for push like anything else.
func (r *Replica) Undo(ctx context.Context) error {
	r.lock.Lock()
	action, ok := r.undo.popUndo()
	r.lock.Unlock()
	if !ok {
		return nil
	}
	for _, op := range action.Inverse {
		if err := r.mutate(ctx, op.Name, json.RawMessage(op.Args), false); err != nil {
			return err
		}
	}
	r.lock.Lock()
	r.undo.redo = append(r.undo.redo, action)
	r.lock.Unlock()
	return nil
}

// Redo replays the most recently undone action.
func (r *Replica) Redo(ctx context.Context) error {
	r.lock.Lock()
	action, ok := r.undo.popRedo()
	r.lock.Unlock()
	if !ok {
		return nil
	}
	for _, op := range action.Forward {
		if err := r.mutate(ctx, op.Name, json.RawMessage(op.Args), false); err != nil {
			return err
		}
	}
	r.lock.Lock()
	r.undo.undo = append(r.undo.undo, action)
	r.lock.Unlock()
	return nil
}
