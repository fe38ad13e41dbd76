package facts

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindBoolean   ValueKind = "boolean"
	KindUnion     ValueKind = "union"
	KindFlag      ValueKind = "flag"
	KindReference ValueKind = "reference"
	KindParent    ValueKind = "parent"
	KindTimestamp ValueKind = "timestamp"
	KindFile      ValueKind = "file"
)

// Value is the tagged union a fact may hold. Scalar kinds serialize as bare
// JSON scalars; structured kinds serialize as {"type": ...} objects. The
// encoding is canonical: it is what gets hashed for the unique-value index
// and what travels on the wire, so both sides of the sync protocol must
// produce identical bytes for identical values.
type Value struct {
	Kind ValueKind

	Str  string  // string, union, file (blob ref id)
	Num  float64 // number
	Bool bool    // boolean

	Ref      string // reference and parent target entity
	Position string // parent fractional sort key

	TSKind string // timestamp sub-type: "iso_string" or "yyyy-mm-dd"
	TS     string // timestamp payload
}

func String(s string) Value    { return Value{Kind: KindString, Str: s} }
func Union(s string) Value     { return Value{Kind: KindUnion, Str: s} }
func Number(n float64) Value   { return Value{Kind: KindNumber, Num: n} }
func Boolean(b bool) Value     { return Value{Kind: KindBoolean, Bool: b} }
func Flag() Value              { return Value{Kind: KindFlag} }
func Ref(entity string) Value  { return Value{Kind: KindReference, Ref: entity} }
func FileRef(id string) Value  { return Value{Kind: KindFile, Str: id} }
func Timestamp(kind, v string) Value {
	return Value{Kind: KindTimestamp, TSKind: kind, TS: v}
}

func Parent(entity, position string) Value {
	return Value{Kind: KindParent, Ref: entity, Position: position}
}

// IsRef reports whether the value points at another entity and therefore
// belongs in the vae index.
func (v Value) IsRef() bool {
	return v.Kind == KindReference || v.Kind == KindParent
}

// Target returns the entity a reference- or parent-typed value points at.
func (v Value) Target() string { return v.Ref }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString, KindUnion:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindFlag:
		return json.Marshal(map[string]string{"type": "flag"})
	case KindReference:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"reference", v.Ref})
	case KindParent:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Value    string `json:"value"`
			Position string `json:"position"`
		}{"parent", v.Ref, v.Position})
	case KindFile:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"file", v.Str})
	case KindTimestamp:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{v.TSKind, v.TS})
	}
	return nil, fmt.Errorf("mud: cannot encode value of kind %q", v.Kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = Value{Kind: KindString, Str: t}
		return nil
	case float64:
		*v = Value{Kind: KindNumber, Num: t}
		return nil
	case bool:
		*v = Value{Kind: KindBoolean, Bool: t}
		return nil
	case map[string]any:
		typ, _ := t["type"].(string)
		val, _ := t["value"].(string)
		switch typ {
		case "flag":
			*v = Flag()
		case "reference":
			*v = Ref(val)
		case "parent":
			pos, _ := t["position"].(string)
			*v = Parent(val, pos)
		case "file":
			*v = FileRef(val)
		case "iso_string", "yyyy-mm-dd":
			*v = Timestamp(typ, val)
		default:
			return errors.Errorf("mud: unknown value type %q", typ)
		}
		return nil
	}
	return errors.Errorf("mud: cannot decode value %s", string(data))
}

// Canonical returns the canonical encoding used for unique-value hashing
// and equality.
func (v Value) Canonical() []byte {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil
	}
	return b
}

func (v Value) Equal(o Value) bool {
	return string(v.Canonical()) == string(o.Canonical())
}

// Normalize coerces a decoded scalar into the kind the schema declares.
// Union values share the bare-string wire form with plain strings, so
// decoding alone cannot tell them apart.
func (v Value) Normalize(s Schema) Value {
	if v.Kind == KindString && s.Type == KindUnion {
		v.Kind = KindUnion
	}
	return v
}
