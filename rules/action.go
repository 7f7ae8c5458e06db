package rules

import (
	"bytes"
	"encoding/json"
)

// ActionType identifies what a rule does when it fires.
type ActionType string

const (
	ActionApplyPercent        ActionType = "applyPercent"
	ActionApplyFixedAmount    ActionType = "applyFixedAmount"
	ActionApplyFreeUnits      ActionType = "applyFreeUnits"
	ActionApplyTieredDiscount ActionType = "applyTieredDiscount"
)

// Tier is one quantity band of a tiered discount. MaxQuantity nil means
// the band is open-ended.
type Tier struct {
	MinQuantity     int64
	MaxQuantity     *int64
	DiscountPercent float64

	malformed bool
}

// UnmarshalJSON accepts only integer quantity bounds: 5 is a valid
// min_quantity, 5.0 and "5" are not. Missing or mistyped fields mark the
// tier malformed rather than failing the decode.
func (t *Tier) UnmarshalJSON(data []byte) error {
	*t = Tier{}

	var obj struct {
		MinQuantity     json.RawMessage `json:"min_quantity"`
		MaxQuantity     json.RawMessage `json:"max_quantity"`
		DiscountPercent json.RawMessage `json:"discount_percent"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		t.malformed = true
		return nil
	}

	min, ok := rawInt(obj.MinQuantity)
	if !ok {
		t.malformed = true
		return nil
	}
	pct, ok := rawFloat(obj.DiscountPercent)
	if !ok {
		t.malformed = true
		return nil
	}
	t.MinQuantity = min
	t.DiscountPercent = pct

	if obj.MaxQuantity != nil && !bytes.Equal(bytes.TrimSpace(obj.MaxQuantity), []byte("null")) {
		max, ok := rawInt(obj.MaxQuantity)
		if !ok {
			t.malformed = true
			return nil
		}
		t.MaxQuantity = &max
	}
	return nil
}

// rawInt parses a JSON value as an integer literal: 5 parses, 5.0 and "5"
// do not.
func rawInt(raw json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' {
		return 0, false
	}
	n, err := json.Number(trimmed).Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// rawFloat parses a JSON number literal.
func rawFloat(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' {
		return 0, false
	}
	f, err := json.Number(trimmed).Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// MarshalJSON writes the tier back in its wire shape.
func (t Tier) MarshalJSON() ([]byte, error) {
	obj := map[string]any{
		"min_quantity":     t.MinQuantity,
		"discount_percent": t.DiscountPercent,
	}
	if t.MaxQuantity != nil {
		obj["max_quantity"] = *t.MaxQuantity
	}
	return json.Marshal(obj)
}

// Valid reports whether the tier is a usable quantity band.
func (t *Tier) Valid() bool {
	if t.malformed {
		return false
	}
	if t.MinQuantity < 0 {
		return false
	}
	if t.DiscountPercent <= 0 || t.DiscountPercent > 100 {
		return false
	}
	if t.MaxQuantity != nil && *t.MaxQuantity <= t.MinQuantity {
		return false
	}
	return true
}

// Action is a rule's effect. Like Condition, decoding never fails; a
// malformed spec is retained raw and reported invalid so stored rules stay
// readable.
type Action struct {
	Type  ActionType
	Args  []json.Number
	Tiers []Tier

	raw       json.RawMessage
	malformed bool
	badArgs   bool
}

// NewPercentAction builds an applyPercent action for pct percent off.
func NewPercentAction(pct string) Action {
	return Action{Type: ActionApplyPercent, Args: []json.Number{json.Number(pct)}}
}

// NewTieredAction builds an applyTieredDiscount action.
func NewTieredAction(tiers ...Tier) Action {
	return Action{Type: ActionApplyTieredDiscount, Tiers: tiers}
}

// UnmarshalJSON decodes the action envelope. Arguments must be JSON
// numbers; a numeric-looking string like "5" marks the action invalid.
func (a *Action) UnmarshalJSON(data []byte) error {
	*a = Action{raw: append(json.RawMessage(nil), data...)}

	var obj struct {
		Type  ActionType        `json:"type"`
		Args  []json.RawMessage `json:"args"`
		Tiers []Tier            `json:"tiers"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		a.malformed = true
		return nil
	}
	a.Type = obj.Type
	a.Tiers = obj.Tiers
	for _, argRaw := range obj.Args {
		trimmed := bytes.TrimSpace(argRaw)
		n := json.Number(trimmed)
		if len(trimmed) == 0 || trimmed[0] == '"' {
			a.badArgs = true
		} else if _, err := n.Float64(); err != nil {
			a.badArgs = true
		}
		a.Args = append(a.Args, n)
	}
	return nil
}

// MarshalJSON reproduces the original bytes when decoded from JSON.
func (a Action) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	obj := map[string]any{"type": a.Type}
	if a.Tiers != nil {
		obj["tiers"] = a.Tiers
	} else {
		args := a.Args
		if args == nil {
			args = []json.Number{}
		}
		obj["args"] = args
	}
	return json.Marshal(obj)
}

// Valid reports whether the action conforms to the action grammar. String
// arguments are rejected even when numeric-looking.
func (a *Action) Valid() bool {
	if a.malformed {
		return false
	}
	switch a.Type {
	case ActionApplyPercent, ActionApplyFixedAmount:
		if a.badArgs || len(a.Args) != 1 {
			return false
		}
		v, err := a.Args[0].Float64()
		return err == nil && v > 0
	case ActionApplyFreeUnits:
		if a.badArgs || len(a.Args) != 1 {
			return false
		}
		n, err := a.Args[0].Int64()
		return err == nil && n > 0
	case ActionApplyTieredDiscount:
		if len(a.Tiers) == 0 {
			return false
		}
		for i := range a.Tiers {
			if !a.Tiers[i].Valid() {
				return false
			}
		}
		return true
	default:
		return false
	}
}
