package facts

// Assertion is the input shape of an assert. FactID is optional and is
// ignored when a cardinality-one slot already holds a live fact, whose id
// wins; that is what makes racing asserts converge on one fact.
type Assertion struct {
	Entity    string            `json:"entity"`
	Attribute string            `json:"attribute"`
	Value     Value             `json:"value"`
	FactID    string            `json:"factID,omitempty"`
	Positions map[string]string `json:"positions,omitempty"`
}

// Update carries the fields an update may change. Nil fields are left
// alone.
type Update struct {
	Attribute *string           `json:"attribute,omitempty"`
	Value     *Value            `json:"value,omitempty"`
	Positions map[string]string `json:"positions,omitempty"`
}

// Result is the caller-visible outcome of a write. Contract failures
// (unknown attribute, uniqueness collision, missing fact) are data, not
// errors; errors are reserved for storage faults.
type Result struct {
	Success bool   `json:"success"`
	FactID  string `json:"factID,omitempty"`
}
