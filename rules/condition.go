package rules

import (
	"bytes"
	"encoding/json"
)

// ConditionKind classifies a decoded condition node.
type ConditionKind int

const (
	// ConditionInvalid marks a node whose shape matches neither a leaf
	// nor a group.
	ConditionInvalid ConditionKind = iota
	// ConditionLeaf is a single field/operator/value comparison.
	ConditionLeaf
	// ConditionGroup combines child conditions under a combinator.
	ConditionGroup
)

// Condition is one node of a rule's condition tree. Decoding never fails:
// malformed input produces a node of kind ConditionInvalid that remembers
// its raw bytes, so a stored rule with a broken condition can still be
// listed and rendered.
type Condition struct {
	kind ConditionKind

	Field    string
	Operator string
	Value    any
	Children []Condition

	raw json.RawMessage
}

// NewLeaf builds a leaf comparison node.
func NewLeaf(field, operator string, value any) Condition {
	return Condition{kind: ConditionLeaf, Field: field, Operator: operator, Value: value}
}

// NewGroup builds a group node combining children under op.
func NewGroup(op string, children ...Condition) Condition {
	return Condition{kind: ConditionGroup, Operator: op, Children: children}
}

// Kind returns the node's classification.
func (c *Condition) Kind() ConditionKind { return c.kind }

// present reports whether key exists in obj with a non-null value. A JSON
// null counts as absent for classification purposes.
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

// UnmarshalJSON classifies a condition node by shape. A node with field,
// operator, and value is a leaf; a node with operator and a conditions
// array is a group; anything else is invalid. The raw bytes are always
// retained.
func (c *Condition) UnmarshalJSON(data []byte) error {
	*c = Condition{raw: append(json.RawMessage(nil), data...)}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}

	fieldRaw, hasField := present(obj, "field")
	opRaw, hasOp := present(obj, "operator")
	valueRaw, hasValue := present(obj, "value")
	childrenRaw, hasChildren := present(obj, "conditions")

	if hasField && hasOp && hasValue {
		var field, op string
		if json.Unmarshal(fieldRaw, &field) != nil || json.Unmarshal(opRaw, &op) != nil {
			return nil
		}
		var value any
		if json.Unmarshal(valueRaw, &value) != nil {
			return nil
		}
		c.kind = ConditionLeaf
		c.Field = field
		c.Operator = op
		c.Value = value
		return nil
	}

	if hasOp && hasChildren {
		var children []json.RawMessage
		if json.Unmarshal(childrenRaw, &children) != nil {
			return nil
		}
		var op string
		if json.Unmarshal(opRaw, &op) != nil {
			return nil
		}
		c.kind = ConditionGroup
		c.Operator = op
		c.Children = make([]Condition, len(children))
		for i, childRaw := range children {
			// Unmarshal into a Condition never errors; bad children
			// become invalid nodes.
			_ = json.Unmarshal(childRaw, &c.Children[i])
		}
		return nil
	}

	return nil
}

// MarshalJSON reproduces the original bytes when the node was decoded from
// JSON, so round-tripping preserves unknown keys and malformed shapes.
func (c Condition) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	switch c.kind {
	case ConditionLeaf:
		return json.Marshal(map[string]any{
			"field":    c.Field,
			"operator": c.Operator,
			"value":    c.Value,
		})
	case ConditionGroup:
		children := c.Children
		if children == nil {
			children = []Condition{}
		}
		return json.Marshal(map[string]any{
			"operator":   c.Operator,
			"conditions": children,
		})
	default:
		return []byte("null"), nil
	}
}

// Valid reports whether the whole tree conforms to the condition grammar.
// Leaves must use registered fields and operators; groups must use AND or
// OR, have at least one child, and every child must be valid.
func (c *Condition) Valid() bool {
	switch c.kind {
	case ConditionLeaf:
		return ValidField(c.Field) && ValidOperator(c.Operator)
	case ConditionGroup:
		if c.Operator != CombinatorAnd && c.Operator != CombinatorOr {
			return false
		}
		if len(c.Children) == 0 {
			return false
		}
		for i := range c.Children {
			if !c.Children[i].Valid() {
				return false
			}
		}
		return true
	default:
		return false
	}
}
