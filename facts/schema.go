package facts

// SchemaVersion identifies the compiled-in attribute registry. Pushes carry
// it so the server can refuse batches from a replica built against a
// different registry.
const SchemaVersion = "2024-06-1"

// BaseAttributes are the attributes the schema system itself is described
// with.
var BaseAttributes = map[string]Schema{
	"name":   {Type: KindString, Cardinality: One, Unique: true},
	"unique": {Type: KindBoolean, Cardinality: One},
	"type": {
		Type:        KindUnion,
		Cardinality: One,
		UnionValues: []string{
			"file", "last-read-message", "timestamp", "string", "union",
			"position", "reference", "boolean", "flag", "number",
		},
	},
	"union/value": {Type: KindString, Cardinality: Many},
	"cardinality": {
		Type:        KindUnion,
		Cardinality: One,
		UnionValues: []string{"many", "one"},
	},
}

// DefaultAttributes are the application attributes.
var DefaultAttributes = map[string]Schema{
	"arbitrarySectionReferenceType": {Type: KindReference, Cardinality: Many},
	"arbitrarySectionStringType":    {Type: KindString, Cardinality: One},

	"block/parent":  {Type: KindParent, Cardinality: One},
	"block/content": {Type: KindString, Cardinality: One},

	"card/title":       {Type: KindString, Cardinality: One, Unique: true},
	"card/content":     {Type: KindString, Cardinality: One},
	"card/image":       {Type: KindFile, Cardinality: One},
	"card/date":        {Type: KindTimestamp, Cardinality: One},
	"card/scheduled":   {Type: KindTimestamp, Cardinality: One},
	"card/created-by":  {Type: KindReference, Cardinality: One},
	"card/unread-by":   {Type: KindReference, Cardinality: Many},
	"card/position-in": {Type: KindParent, Cardinality: One},

	"deck/contains":    {Type: KindReference, Cardinality: Many},
	"desktop/contains": {Type: KindReference, Cardinality: Many},
	"home":             {Type: KindFlag, Cardinality: One},

	"inline-link-to": {Type: KindReference, Cardinality: Many},

	"space/member":              {Type: KindString, Cardinality: One, Unique: true},
	"space/name":                {Type: KindString, Cardinality: One, Unique: true},
	"space/id":                  {Type: KindString, Cardinality: One, Unique: true},
	"space/community":           {Type: KindString, Cardinality: One, Unique: true},
	"space/studio":              {Type: KindString, Cardinality: One},
	"space/description":         {Type: KindString, Cardinality: One},
	"space/start-date":          {Type: KindTimestamp, Cardinality: One},
	"space/end-date":            {Type: KindTimestamp, Cardinality: One},
	"space/door/uploaded-image": {Type: KindFile, Cardinality: One},

	"member/name": {Type: KindString, Cardinality: One, Unique: true},

	"this/name":        {Type: KindString, Cardinality: One, Unique: true},
	"this/description": {Type: KindString, Cardinality: One},

	"canvas/height": {Type: KindNumber, Cardinality: One},
	"room/name":     {Type: KindString, Cardinality: One},
}

var registry = func() map[string]Schema {
	m := make(map[string]Schema, len(BaseAttributes)+len(DefaultAttributes))
	for k, v := range DefaultAttributes {
		m[k] = v
	}
	for k, v := range BaseAttributes {
		m[k] = v
	}
	return m
}()

// Resolve looks an attribute up in the registry. Pure; identical on client
// and server. The second return is false for unknown attributes.
func Resolve(attribute string) (Schema, bool) {
	s, ok := registry[attribute]
	return s, ok
}

// Attributes returns the names of every registered attribute.
func Attributes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
